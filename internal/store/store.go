package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"
)

// InMemory is the location of a private in-memory database.
const InMemory = ":memory:"

// DefaultBusyTimeout is how long SQLite waits on a locked database before
// returning SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// LeaseHolder is the view of an access lease that a Handle keeps in its
// registration slot.
type LeaseHolder interface {
	LeaseID() string
}

// Option configures a Handle.
type Option func(*Handle)

// WithBusyTimeout sets the engine busy timeout applied when the connection opens.
func WithBusyTimeout(d time.Duration) Option {
	return func(h *Handle) { h.busyTimeout = d }
}

// WithJournalMode sets the journal mode applied when the connection opens.
// An empty mode, the default, leaves the database's journal mode as it is.
func WithJournalMode(mode string) Option {
	return func(h *Handle) { h.journalMode = mode }
}

// WithReadOnly opens the database read-only. The file must already exist and
// the connection never writes to it, so the journal mode is not applied.
func WithReadOnly() Option {
	return func(h *Handle) { h.readOnly = true }
}

// WithClock sets the clock behind the now_ms() SQL function.
func WithClock(c Clock) Option {
	return func(h *Handle) { h.clock = c }
}

// Handle owns the native connection to one SQLite database and the slot that
// admits at most one access lease.
//
// A Handle does no statement-level locking of its own. SQLite connections are
// not safe for concurrent use, so all statement calls are expected to arrive
// through the registered lease, which runs them one at a time.
type Handle struct {
	location    string
	journalMode string
	readOnly    bool
	clock       Clock

	// connMu guards connection state only; it is held while opening or
	// closing, never across statement execution.
	connMu      sync.Mutex
	busyTimeout time.Duration
	db          *sql.DB
	conn        *sql.Conn
	stmts       map[*Statement]struct{}
	dropped     bool

	// leaseMu guards the registration slot and nothing else.
	leaseMu sync.Mutex
	lease   LeaseHolder
}

// New returns a Handle for location without connecting. The connection opens
// on first use.
func New(location string, opts ...Option) *Handle {
	h := &Handle{
		location:    location,
		clock:       SystemClock,
		busyTimeout: DefaultBusyTimeout,
		stmts:       make(map[*Statement]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Location returns the database path, or InMemory.
func (h *Handle) Location() string {
	return h.location
}

// OpenConnectionIfNeeded opens the native connection if it is not open yet.
// On failure the handle stays disconnected and a later call may retry.
func (h *Handle) OpenConnectionIfNeeded(ctx context.Context) error {
	_, err := h.connection(ctx)
	return err
}

// Connected reports whether the native connection is open.
func (h *Handle) Connected() bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.conn != nil
}

func (h *Handle) connection(ctx context.Context) (*sql.Conn, error) {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.dropped {
		return nil, &ConnectionError{Location: h.location, Err: ErrDropped}
	}
	if h.conn != nil {
		return h.conn, nil
	}

	db := sql.OpenDB(newConnector(h.dsn(), h.clock))

	// One connection: the handle is the single writer, and an in-memory
	// database only exists inside the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, &ConnectionError{Location: h.location, Err: err}
	}

	if err := h.applyPragmas(ctx, conn); err != nil {
		conn.Close()
		db.Close()
		return nil, &ConnectionError{Location: h.location, Err: err}
	}

	h.db = db
	h.conn = conn
	return conn, nil
}

// dsn returns the name the driver opens. Read-only handles use a file: URI
// with mode=ro, which also keeps the driver from creating a missing file.
func (h *Handle) dsn() string {
	if !h.readOnly || h.location == InMemory || h.location == "" {
		return h.location
	}
	return "file:" + (&url.URL{Path: h.location}).EscapedPath() + "?mode=ro"
}

// applyPragmas sets the connection configuration.
func (h *Handle) applyPragmas(ctx context.Context, conn *sql.Conn) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", h.busyTimeout.Milliseconds()),
	}
	// Changing the journal mode rewrites the database header.
	if h.journalMode != "" && !h.readOnly {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA journal_mode = %s", h.journalMode))
	}
	pragmas = append(pragmas,
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	)

	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// SetBusyTimeout changes the engine busy timeout. If the connection is not
// open yet the value is applied when it opens; this never opens it.
func (h *Handle) SetBusyTimeout(ctx context.Context, d time.Duration) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	h.busyTimeout = d
	if h.conn == nil {
		return nil
	}
	_, err := h.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
	return engineError("busy timeout", err)
}

// RegisterLease claims the lease slot for l. It fails with a
// *LeaseConflictError naming the current holder if the slot is taken.
func (h *Handle) RegisterLease(l LeaseHolder) error {
	h.leaseMu.Lock()
	defer h.leaseMu.Unlock()

	if h.lease != nil {
		return &LeaseConflictError{Location: h.location, Existing: h.lease}
	}
	h.lease = l
	return nil
}

// UnregisterLease clears the slot if l holds it and reports whether it did.
func (h *Handle) UnregisterLease(l LeaseHolder) bool {
	h.leaseMu.Lock()
	defer h.leaseMu.Unlock()

	if h.lease == nil || h.lease != l {
		return false
	}
	h.lease = nil
	return true
}

// ActiveLease returns the registered lease, or nil.
func (h *Handle) ActiveLease() LeaseHolder {
	h.leaseMu.Lock()
	defer h.leaseMu.Unlock()
	return h.lease
}

// Exec runs one or more statements that return no rows.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) error {
	conn, err := h.connection(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, query, args...)
	return engineError("exec", err)
}

// SnapshotInto writes a transactionally consistent copy of the database to
// path using VACUUM INTO. The file at path must not exist.
func (h *Handle) SnapshotInto(ctx context.Context, path string) error {
	conn, err := h.connection(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, "VACUUM INTO ?", path)
	return engineError("snapshot", err)
}

// Close finalizes outstanding statements and closes the connection. The
// handle can be reopened afterwards.
func (h *Handle) Close() error {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	var errs []error
	for s := range h.stmts {
		if err := s.release(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(h.stmts)

	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		h.conn = nil
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			errs = append(errs, err)
		}
		h.db = nil
	}
	return errors.Join(errs...)
}

// Drop closes the connection, deletes the database files and clears the lease
// slot. The handle is inert afterwards. The registered lease, if any, should
// have been disposed first.
func (h *Handle) Drop() error {
	h.connMu.Lock()
	err := h.closeLocked()
	h.dropped = true
	h.connMu.Unlock()

	errs := []error{err}
	if h.location != InMemory && h.location != "" {
		for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
			if rmErr := os.Remove(h.location + suffix); rmErr != nil && !os.IsNotExist(rmErr) {
				errs = append(errs, rmErr)
			}
		}
	}

	h.leaseMu.Lock()
	h.lease = nil
	h.leaseMu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("drop %s: %w", h.location, err)
	}
	return nil
}

func (h *Handle) track(s *Statement) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.stmts[s] = struct{}{}
}

func (h *Handle) untrack(s *Statement) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	delete(h.stmts, s)
}

// pragma reads a single-valued pragma. Used for testing.
func (h *Handle) pragma(ctx context.Context, name string) (string, error) {
	conn, err := h.connection(ctx)
	if err != nil {
		return "", err
	}
	var value string
	if err := conn.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", engineError("pragma", err)
	}
	return value, nil
}
