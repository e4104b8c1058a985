package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/litelease/internal/store"
)

// IDGenerator produces lease identifiers.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 lease IDs.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Lease is what both lease variants have in common. It is also the type of
// the parent argument to WithAccess.
type Lease interface {
	LeaseID() string
	Handle() *store.Handle
	Disposed() bool
	Dispose(ctx context.Context) error
}

// Option configures a lease.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	busyTimeout time.Duration
	ids         IDGenerator
}

// WithLogger sets the logger used for refused and failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBusyTimeout sets the handle's engine busy timeout when the lease opens.
// An exceeded timeout surfaces as a store.EngineError with SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithIDGenerator overrides how the lease ID is generated.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// lease is the state shared by Blocking and NonBlocking.
type lease struct {
	id       string
	handle   *store.Handle
	exec     *executor
	logger   *slog.Logger
	disposed atomic.Bool
}

// init registers holder (the outer Blocking or NonBlocking) in h's slot and
// starts the executor.
func (l *lease) init(h *store.Handle, holder store.LeaseHolder, opts []Option) error {
	o := options{
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	l.id = o.ids.Generate()
	l.handle = h
	l.logger = o.logger.With("lease", l.id, "location", h.Location())

	if err := h.RegisterLease(holder); err != nil {
		return fmt.Errorf("open lease: %w", err)
	}

	if o.busyTimeout > 0 {
		if err := h.SetBusyTimeout(context.Background(), o.busyTimeout); err != nil {
			h.UnregisterLease(holder)
			return fmt.Errorf("open lease: %w", err)
		}
	}

	l.exec = newExecutor(h, holder)
	return nil
}

// LeaseID returns the lease identifier.
func (l *lease) LeaseID() string {
	return l.id
}

// Handle returns the handle this lease is registered on.
func (l *lease) Handle() *store.Handle {
	return l.handle
}

// Disposed reports whether Dispose has been called.
func (l *lease) Disposed() bool {
	return l.disposed.Load()
}

// Dispose stops the lease from accepting new operations, waits for queued
// ones to finish and releases the handle's lease slot. It is idempotent.
//
// Called from inside one of the lease's own operations, Dispose returns
// without waiting; the slot is released when that operation returns. If ctx
// ends before the queue drains, ctx.Err() is returned and the slot is
// released later, once the last queued operation completes.
func (l *lease) Dispose(ctx context.Context) error {
	if l.disposed.CompareAndSwap(false, true) {
		l.exec.close()
	}
	if l.exec.owns(ctx) {
		return nil
	}
	select {
	case <-l.exec.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sameHandle validates a parent lease for nested access.
func (l *lease) sameHandle(parent Lease) error {
	if parent.Handle() != l.handle {
		return fmt.Errorf("%w: parent %s is on %s, lease is on %s",
			ErrInvalidNestedAccess, parent.LeaseID(), parent.Handle().Location(), l.handle.Location())
	}
	return nil
}
