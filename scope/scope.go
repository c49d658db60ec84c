package scope

import (
	"github.com/samber/lo"
)

type (
	// Scope is the capability tuple every store call is filtered or rejected by.
	// Membership sets name the users, projects and contacts whose records the
	// caller may touch; Permissions gate read/write/delete per call.
	Scope struct {
		ID          string      `json:"id"`
		UserIDs     []string    `json:"userIds"`
		ProjectIDs  []string    `json:"projectIds"`
		ContactIDs  []string    `json:"contactIds"`
		Permissions Permissions `json:"permissions"`
	}

	Permissions struct {
		Read   bool `json:"read"`
		Write  bool `json:"write"`
		Delete bool `json:"delete"`
	}
)

// Unrestricted builds a scope with empty membership sets. A scope whose
// membership sets are all empty performs no ownership filtering at all; it is
// reserved for system and administrative contexts and must never be derived
// from untrusted input.
func Unrestricted(id string) Scope {
	return Scope{
		ID: id,
		Permissions: Permissions{
			Read:   true,
			Write:  true,
			Delete: true,
		},
	}
}

// Unrestricted reports whether all three membership sets are empty.
func (s Scope) Unrestricted() bool {
	return len(s.UserIDs) == 0 && len(s.ProjectIDs) == 0 && len(s.ContactIDs) == 0
}

// AllowsOwnership reports whether a record owned by ownerID and tagged with
// project/contact tags falls inside this scope's membership sets.
func (s Scope) AllowsOwnership(ownerID string, projectIDs []string, contactIDs []string) bool {
	if s.Unrestricted() {
		return true
	}
	if lo.Contains(s.UserIDs, ownerID) {
		return true
	}
	if lo.Some(s.ProjectIDs, projectIDs) {
		return true
	}
	return lo.Some(s.ContactIDs, contactIDs)
}
