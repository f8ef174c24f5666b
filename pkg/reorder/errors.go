package reorder

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillpress/quill/pkg/models"
)

// ErrReorderPending is returned by Reorder when the collection has an
// unfinished run. Resume it before starting a new one.
var ErrReorderPending = errors.New("collection has an unfinished reorder run")

// ErrCannotAbandon is returned by Abandon once the run has rewritten links.
// Such a run can only be finished with Resume.
var ErrCannotAbandon = errors.New("reorder run has already rewritten links, resume it to finish")

// PartialFailure reports a run that stopped between phases. The journal
// keeps the plan, so the run can be continued with Resume. A run that
// failed before rewriting links can instead be abandoned and its leftovers
// cleared with the janitor before reordering again.
type PartialFailure struct {
	Collection models.Collection
	RunID      uuid.UUID
	Phase      models.ReorderPhase // last completed phase
	Err        error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("reorder of %s (run %s) failed after phase %q: %v",
		e.Collection, e.RunID, e.Phase, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
