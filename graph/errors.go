package graph

import (
	"fmt"
)

// ConflictError is raised only by the conditional update when the expected
// version no longer matches the stored one. The caller recovers by re-reading
// and retrying the whole read-modify-write cycle; it is never retried here.
type ConflictError struct {
	EntityID        string
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("memorycore: version conflict on entity %s: expected %d, actual %d",
		e.EntityID, e.ExpectedVersion, e.ActualVersion)
}
