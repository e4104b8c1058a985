package access

import (
	"context"

	"github.com/roach88/litelease/internal/store"
)

// NonBlocking is a lease whose operations are fire-and-forget. Operations
// submitted through one NonBlocking lease run in submission order.
//
// There is no channel back to the caller, so misuse that a Blocking lease
// would report as an error is logged and the operation dropped.
type NonBlocking struct {
	lease
}

// OpenNonBlocking registers a non-blocking lease on h. It fails with a
// *store.LeaseConflictError if h already has a lease.
func OpenNonBlocking(h *store.Handle, opts ...Option) (*NonBlocking, error) {
	n := &NonBlocking{}
	if err := n.init(h, n, opts); err != nil {
		return nil, err
	}
	return n, nil
}

// WithAccess schedules op and returns immediately.
//
// A parent on the same handle makes op run inline before WithAccess returns;
// a parent on another handle is refused. After Dispose the call is a no-op.
// Errors returned by op are logged.
func (n *NonBlocking) WithAccess(ctx context.Context, parent Lease, op Operation) {
	if n.disposed.Load() {
		n.logger.Warn("access after dispose ignored")
		return
	}
	if parent != nil {
		if err := n.sameHandle(parent); err != nil {
			n.logger.Error("nested access refused", "parent", parent.LeaseID(), "error", err)
			return
		}
		n.report(n.exec.inline(ctx, op))
		return
	}
	if !n.exec.submit(ctx, op, n.report) {
		n.logger.Warn("access after dispose ignored")
	}
}

func (n *NonBlocking) report(err error) {
	if err != nil {
		n.logger.Error("non-blocking operation failed", "error", err)
	}
}
