package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litelease/internal/filelock"
	"github.com/roach88/litelease/internal/store"
)

// syncBuffer is a bytes.Buffer safe for a running command to write into
// while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// newRoot returns the root command with separate stdout and stderr buffers.
func newRoot(args ...string) (*cobra.Command, *syncBuffer, *syncBuffer) {
	cmd := NewRootCommand()
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return cmd, stdout, stderr
}

// createItemsDB writes a database with an items table holding two rows.
func createItemsDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "source.db")
	h := store.New(path)
	defer h.Close()

	err := h.Exec(context.Background(), `
		CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL, score REAL);
		INSERT INTO items (id, name, score) VALUES (1, 'one', 1.5), (2, 'two', NULL);`)
	require.NoError(t, err)
	return path
}

// countItems counts the rows of path's items table while holding a shared
// lock, so a replication in progress is never observed half written.
func countItems(path string) (int64, error) {
	var n int64
	err := filelock.PerformInLock(context.Background(), path, filelock.Read, "count items", func() error {
		h := store.New(path, store.WithReadOnly())
		defer h.Close()

		ctx := context.Background()
		stmt, err := h.Prepare(ctx, `SELECT count(*) FROM items`)
		if err != nil {
			return err
		}
		defer stmt.Finalize()
		if _, err := stmt.Step(ctx); err != nil {
			return err
		}
		n, err = stmt.ColumnInt64(0)
		return err
	})
	return n, err
}
