package invalidate

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/quillpress/quill/pkg/models"
)

// Invalidator delivers one event to a cache-invalidation backend.
type Invalidator interface {
	// Name returns the backend identifier.
	Name() string

	// Invalidate delivers the event.
	Invalidate(ctx context.Context, ev Event) error
}

// Notifier is what identity operations call after a successful change. It
// must not block and has no error to report.
type Notifier interface {
	Notify(c models.Collection, reason Reason, ids ...int)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(models.Collection, Reason, ...int) {}

// BackendError represents an error from a specific backend.
type BackendError struct {
	Backend   string // Backend name (e.g., "redis", "webhook")
	Operation string // Operation that failed (e.g., "publish", "delete")
	Err       error  // Underlying error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error (%s): %v", e.Backend, e.Operation, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError creates a new backend error.
func NewBackendError(backend, operation string, err error) *BackendError {
	return &BackendError{
		Backend:   backend,
		Operation: operation,
		Err:       err,
	}
}

// Multi fans an event out to several backends. Every backend is attempted;
// failures are aggregated.
type Multi []Invalidator

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Invalidate(ctx context.Context, ev Event) error {
	var result *multierror.Error
	for _, b := range m {
		if err := b.Invalidate(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
