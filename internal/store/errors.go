package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrLeaseConflict matches any *LeaseConflictError.
	ErrLeaseConflict = errors.New("lease already registered")

	// ErrEngineCall matches any *EngineError.
	ErrEngineCall = errors.New("engine call failed")

	// ErrDropped is wrapped by ConnectionError once a handle has been dropped.
	ErrDropped = errors.New("storage handle dropped")

	// ErrColumnRange is returned by checked column readers for an index
	// outside the current row.
	ErrColumnRange = errors.New("column index out of range")

	// ErrColumnType is returned by checked column readers when the stored
	// value does not have the requested type.
	ErrColumnType = errors.New("column type mismatch")

	// ErrNoRow is returned by column readers when Step has not produced a row.
	ErrNoRow = errors.New("no current row")

	// ErrFinalized is returned by Statement methods after Finalize.
	ErrFinalized = errors.New("statement finalized")
)

// ConnectionError reports that the native connection could not be opened.
// The handle stays disconnected, so the next access attempt retries.
type ConnectionError struct {
	Location string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Location, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// LeaseConflictError is returned when a lease is registered on a handle that
// already has one. Existing is the lease currently holding the slot.
type LeaseConflictError struct {
	Location string
	Existing LeaseHolder
}

func (e *LeaseConflictError) Error() string {
	if e.Existing == nil {
		return fmt.Sprintf("%s: %v", e.Location, ErrLeaseConflict)
	}
	return fmt.Sprintf("%s: %v (held by %s)", e.Location, ErrLeaseConflict, e.Existing.LeaseID())
}

func (e *LeaseConflictError) Is(target error) bool {
	return target == ErrLeaseConflict
}

// EngineError carries the result code and message of a failing SQLite call.
//
// Code is the primary result code (SQLITE_BUSY, SQLITE_CONSTRAINT, ...) and
// ExtendedCode the extended one when the driver reports it. Errors that do not
// originate in SQLite itself (closed connection, cancelled context) are
// reported with Code SQLITE_ERROR so callers only ever see one failure kind.
type EngineError struct {
	Op           string
	Code         int
	ExtendedCode int
	Message      string
	Err          error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: sqlite error %d: %s", e.Op, e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngineCall
}

// IsBusy reports whether err is an engine error caused by lock contention,
// which is how an exceeded busy timeout surfaces.
func IsBusy(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == int(sqlite3.ErrBusy) || ee.Code == int(sqlite3.ErrLocked)
	}
	return false
}

// engineError wraps err as an *EngineError for op. Nil stays nil and errors
// that already are engine errors are returned unchanged.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		return &EngineError{
			Op:           op,
			Code:         int(se.Code),
			ExtendedCode: int(se.ExtendedCode),
			Message:      se.Error(),
			Err:          err,
		}
	}
	return &EngineError{
		Op:      op,
		Code:    int(sqlite3.ErrError),
		Message: err.Error(),
		Err:     err,
	}
}
