package access

import "errors"

var (
	// ErrDisposed is returned by blocking access after the lease was disposed.
	ErrDisposed = errors.New("lease disposed")

	// ErrInvalidNestedAccess is returned when the parent lease passed to
	// WithAccess belongs to a different handle.
	ErrInvalidNestedAccess = errors.New("parent lease belongs to a different handle")

	// ErrOperationPanicked wraps a panic recovered from an operation.
	ErrOperationPanicked = errors.New("operation panicked")
)
