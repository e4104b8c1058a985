package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/litelease/internal/access"
	"github.com/roach88/litelease/internal/filelock"
	"github.com/roach88/litelease/internal/store"
	"github.com/roach88/litelease/internal/throttle"
)

// LevelTrace is below slog.LevelDebug; phase checkpoints are logged at it.
const LevelTrace = slog.LevelDebug - 4

// DefaultInterval is the coalescing interval Schedule uses when given zero.
const DefaultInterval = time.Second

// Phase names a step of one replication attempt.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseLockAcquiring   Phase = "lock_acquiring"
	PhaseAccessAcquiring Phase = "access_acquiring"
	PhaseSnapshotting    Phase = "snapshotting"
	PhaseLockReleased    Phase = "lock_released"
)

// ErrSameFile is returned when the replica path names the source database.
var ErrSameFile = errors.New("replica path is the source database")

// Option configures a Replicator.
type Option func(*Replicator)

// WithInterval sets the default coalescing interval for Schedule.
func WithInterval(d time.Duration) Option {
	return func(r *Replicator) { r.interval = d }
}

// WithLogger sets the logger for phase traces and failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replicator) { r.logger = l }
}

// Replicator writes snapshots of the database behind a blocking lease to a
// fixed target path. It can be used any number of times.
type Replicator struct {
	source    *access.Blocking
	target    string
	interval  time.Duration
	logger    *slog.Logger
	throttler *throttle.Throttler
}

// New creates a Replicator from source into target.
func New(source *access.Blocking, target string, opts ...Option) *Replicator {
	r := &Replicator{
		source:   source,
		target:   target,
		interval: DefaultInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.throttler = throttle.New()
	r.logger = r.logger.With("source", source.Handle().Location(), "target", target)
	return r
}

// Target returns the replica path.
func (r *Replicator) Target() string {
	return r.target
}

func (r *Replicator) trace(ctx context.Context, p Phase) {
	r.logger.Log(ctx, LevelTrace, "replication phase", "phase", string(p))
}

// Perform replicates now and blocks until the snapshot is written or has
// failed. Failures are logged and returned.
func (r *Replicator) Perform(ctx context.Context) error {
	start := time.Now()
	description := fmt.Sprintf("replicating %s into %s", r.source.Handle().Location(), r.target)

	r.trace(ctx, PhaseLockAcquiring)
	err := filelock.PerformInLock(ctx, r.target, filelock.Delete, description, func() error {
		r.trace(ctx, PhaseAccessAcquiring)
		return r.source.WithAccess(ctx, nil, func(ctx context.Context, h *store.Handle) error {
			if same(h.Location(), r.target) {
				return ErrSameFile
			}
			r.trace(ctx, PhaseSnapshotting)
			// The target usually exists from the previous run; it may not.
			_ = os.Remove(r.target)
			return h.SnapshotInto(ctx, r.target)
		})
	})
	r.trace(ctx, PhaseLockReleased)

	elapsed := time.Since(start)
	recordReplication(err, elapsed.Seconds())
	if err != nil {
		r.logger.Error("replication failed", "error", err)
		r.trace(ctx, PhaseIdle)
		return fmt.Errorf("replicate to %s: %w", r.target, err)
	}

	r.logger.Debug("replication complete", "duration", elapsed)
	r.trace(ctx, PhaseIdle)
	return nil
}

// Schedule requests a replication after interval, or the default interval if
// zero. Requests arriving within the interval of each other collapse into one
// run. Failures are logged only.
func (r *Replicator) Schedule(interval time.Duration) {
	if interval <= 0 {
		interval = r.interval
	}
	replicationsScheduled.Inc()
	r.throttler.Throttle(interval, func() {
		// Perform has already logged the failure; there is no caller to return it to.
		_ = r.Perform(context.Background())
	})
}

// Pending reports whether a scheduled replication is waiting to run.
func (r *Replicator) Pending() bool {
	return r.throttler.Pending()
}

// Flush runs a pending scheduled replication now and reports whether there
// was one.
func (r *Replicator) Flush() bool {
	return r.throttler.Flush()
}

// Stop cancels a pending scheduled replication.
func (r *Replicator) Stop() {
	r.throttler.Stop()
}

// Wait blocks until a scheduled replication already running has finished.
func (r *Replicator) Wait() {
	r.throttler.Wait()
}

// Replicate runs one replication from an open blocking lease into to.
func Replicate(ctx context.Context, source *access.Blocking, to string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return New(source, to, WithLogger(logger)).Perform(ctx)
}

// ReplicateFrom opens sourcePath read-only, replicates it into to and closes
// it again. The source must exist; a missing file is reported as a
// *store.ConnectionError and is never created.
//
// With lockSource, a shared file lock is held on sourcePath for the whole
// run and the connection is opened only inside it, so a cooperating process
// holding the exclusive lock cannot change the file between open and
// snapshot.
func ReplicateFrom(ctx context.Context, sourcePath, to string, logger *slog.Logger, lockSource bool, opts ...store.Option) error {
	if logger == nil {
		logger = slog.Default()
	}
	if same(sourcePath, to) {
		return fmt.Errorf("replicate %s: %w", sourcePath, ErrSameFile)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return &store.ConnectionError{Location: sourcePath, Err: err}
	}

	run := func() (err error) {
		h := store.New(sourcePath, append(opts[:len(opts):len(opts)], store.WithReadOnly())...)
		defer func() {
			if cerr := h.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", sourcePath, cerr)
			}
		}()

		lease, err := access.OpenBlocking(h, access.WithLogger(logger))
		if err != nil {
			return err
		}
		defer lease.Dispose(context.WithoutCancel(ctx))

		if err := lease.WithAccess(ctx, nil, func(ctx context.Context, h *store.Handle) error {
			return h.OpenConnectionIfNeeded(ctx)
		}); err != nil {
			return err
		}
		return Replicate(ctx, lease, to, logger)
	}

	if !lockSource {
		return run()
	}
	return filelock.PerformInLock(ctx, sourcePath, filelock.Read, "opening "+sourcePath+" for replication", run)
}

func same(a, b string) bool {
	if a == store.InMemory || b == store.InMemory {
		return false
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
