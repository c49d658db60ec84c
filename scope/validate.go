package scope

import (
	"fmt"
	"strings"
)

// Permission names a single capability checked by ValidateAccess.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
)

// AccessError is raised when a scope lacks a permission required by the
// operation. It is fatal to the current call and never retried.
type AccessError struct {
	Message  string
	Scope    Scope
	Required []Permission
}

func (e *AccessError) Error() string {
	required := make([]string, 0, len(e.Required))
	for _, p := range e.Required {
		required = append(required, string(p))
	}
	return fmt.Sprintf("memorycore: access denied for scope %q (requires %s): %s",
		e.Scope.ID, strings.Join(required, ","), e.Message)
}

// ValidateAccess checks each requested permission against the scope's
// permission flags and fails on the first unmet one. A nil return means the
// operation may proceed; the membership filtering itself happens in the
// stores.
func ValidateAccess(s Scope, required ...Permission) error {
	for _, p := range required {
		var granted bool
		switch p {
		case PermissionRead:
			granted = s.Permissions.Read
		case PermissionWrite:
			granted = s.Permissions.Write
		case PermissionDelete:
			granted = s.Permissions.Delete
		default:
			return &AccessError{
				Message:  fmt.Sprintf("unknown permission %q", p),
				Scope:    s,
				Required: required,
			}
		}
		if !granted {
			return &AccessError{
				Message:  fmt.Sprintf("scope does not grant %s", p),
				Scope:    s,
				Required: required,
			}
		}
	}
	return nil
}
