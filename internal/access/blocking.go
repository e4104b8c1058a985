package access

import (
	"context"

	"github.com/roach88/litelease/internal/store"
)

// Blocking is a lease whose operations run synchronously: WithAccess returns
// only after the operation has completed on the lease's executor.
type Blocking struct {
	lease
}

// OpenBlocking registers a blocking lease on h. It fails with a
// *store.LeaseConflictError if h already has a lease.
func OpenBlocking(h *store.Handle, opts ...Option) (*Blocking, error) {
	b := &Blocking{}
	if err := b.init(h, b, opts); err != nil {
		return nil, err
	}
	return b, nil
}

// WithAccess runs op against the handle and returns its error.
//
//   - parent non-nil: parent must be on the same handle, and op runs inline
//     on the calling goroutine. A parent on another handle fails with
//     ErrInvalidNestedAccess.
//   - ctx issued by this lease (op is nested inside one of its operations):
//     op runs inline.
//   - otherwise op is queued on the executor and WithAccess waits for it.
//
// Fails with ErrDisposed once the lease is disposed.
func (b *Blocking) WithAccess(ctx context.Context, parent Lease, op Operation) error {
	if b.disposed.Load() {
		return ErrDisposed
	}
	if parent != nil {
		if err := b.sameHandle(parent); err != nil {
			return err
		}
		return b.exec.inline(ctx, op)
	}
	if b.exec.owns(ctx) {
		return b.exec.inline(ctx, op)
	}
	return b.exec.dispatch(ctx, op)
}

// Query runs fn through b and returns its result.
func Query[T any](ctx context.Context, b *Blocking, parent Lease, fn func(ctx context.Context, h *store.Handle) (T, error)) (T, error) {
	var out T
	err := b.WithAccess(ctx, parent, func(ctx context.Context, h *store.Handle) error {
		v, err := fn(ctx, h)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
