package store

import (
	"context"
	"fmt"
	"slices"
)

// Migration is one caller-supplied schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies every step whose Version is above the database's
// user_version, in ascending order. Each step and its version bump commit in
// one transaction, so re-running Migrate is a no-op.
//
// Like any other statement call, Migrate must run through the handle's lease.
func Migrate(ctx context.Context, h *Handle, steps []Migration) error {
	conn, err := h.connection(ctx)
	if err != nil {
		return err
	}

	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", engineError("migrate", err))
	}

	ordered := slices.Clone(steps)
	slices.SortFunc(ordered, func(a, b Migration) int { return a.Version - b.Version })

	for _, m := range ordered {
		if m.Version <= version {
			continue
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.Version, engineError("begin", err))
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.Version, m.Name, engineError("exec", err))
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version: %w", engineError("exec", err))
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.Version, engineError("commit", err))
		}
		version = m.Version
	}

	return nil
}

// UserVersion returns the schema version recorded by Migrate.
func UserVersion(ctx context.Context, h *Handle) (int, error) {
	v, err := h.pragma(ctx, "user_version")
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscan(v, &n); err != nil {
		return 0, fmt.Errorf("parse user_version %q: %w", v, err)
	}
	return n, nil
}
