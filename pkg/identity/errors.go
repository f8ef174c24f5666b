package identity

import (
	"fmt"

	"github.com/quillpress/quill/pkg/models"
)

// AllocationError is returned when an id cannot be issued, either because
// the collection lock could not be acquired or because reading the current
// maximum failed. The lock is never left held.
type AllocationError struct {
	Collection models.Collection
	Op         string // "lock" or "scan"
	Err        error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("error allocating %s id (%s): %v", e.Collection, e.Op, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
