package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	ID   int64
	Name string
}

type stubLease struct{ id string }

func (l *stubLease) LeaseID() string { return l.id }

// newTestHandle creates a handle on a fresh database file.
func newTestHandle(t *testing.T, opts ...Option) *Handle {
	t.Helper()
	h := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	t.Cleanup(func() { h.Close() })
	return h
}

// seedPairs creates the items table with rows (1,"one") and (2,"two").
func seedPairs(t *testing.T, h *Handle) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`))
	require.NoError(t, h.Exec(ctx, `INSERT INTO items (id, name) VALUES (1, 'one'), (2, 'two')`))
}

// readPairs returns all rows of the items table ordered by id.
func readPairs(t *testing.T, h *Handle) []pair {
	t.Helper()
	ctx := context.Background()
	stmt, err := h.Prepare(ctx, `SELECT id, name FROM items ORDER BY id`)
	require.NoError(t, err)
	defer stmt.Finalize()

	var out []pair
	for {
		ok, err := stmt.Step(ctx)
		require.NoError(t, err)
		if !ok {
			return out
		}
		id, err := stmt.ColumnInt64(0)
		require.NoError(t, err)
		name, err := stmt.ColumnText(1)
		require.NoError(t, err)
		out = append(out, pair{ID: id, Name: name})
	}
}
