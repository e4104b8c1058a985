// Package filelock provides advisory, cross-process file locks.
//
// Locks are taken on a sidecar file next to the protected path (path + ".lock"),
// so the protected file itself may be deleted and recreated while locked. The
// sidecar is never removed; deleting it under a waiter would split the lock.
package filelock

import (
	"context"
	"fmt"
	"os"
	"time"
)

// LockType selects shared or exclusive locking.
type LockType int

const (
	// Read is a shared lock: any number of readers may hold it together.
	Read LockType = iota
	// Delete is an exclusive lock for writers that may remove or replace
	// the file.
	Delete
)

func (t LockType) String() string {
	switch t {
	case Read:
		return "read"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("LockType(%d)", int(t))
	}
}

// Suffix is appended to the protected path to name the lock file.
const Suffix = ".lock"

const (
	minPoll = 5 * time.Millisecond
	maxPoll = 100 * time.Millisecond
)

// LockError reports a failure to acquire a lock.
type LockError struct {
	Path        string
	Type        LockType
	Description string
	Err         error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("acquire %s lock on %s (%s): %v", e.Type, e.Path, e.Description, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// PerformInLock runs body while holding a lock of type lt on path.
//
// Acquisition waits while another holder has a conflicting lock, until ctx
// ends. description names the operation in errors. The lock is released on
// every exit from body, including a panic.
func PerformInLock(ctx context.Context, path string, lt LockType, description string, body func() error) error {
	f, err := acquire(ctx, path, lt)
	if err != nil {
		return &LockError{Path: path, Type: lt, Description: description, Err: err}
	}
	defer release(f)

	return body()
}

func acquire(ctx context.Context, path string, lt LockType) (*os.File, error) {
	f, err := os.OpenFile(path+Suffix, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	poll := minPoll
	for {
		locked, err := tryLock(f, lt)
		if err != nil {
			f.Close()
			return nil, err
		}
		if locked {
			return f, nil
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(poll):
		}
		poll = min(poll*2, maxPoll)
	}
}

func release(f *os.File) {
	unlock(f)
	f.Close()
}
