package access

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/litelease/internal/store"
)

// syncBuffer is a bytes.Buffer safe for the executor goroutine to log into
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

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func newTestHandle(t *testing.T) *store.Handle {
	t.Helper()
	h := store.New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { h.Close() })
	return h
}

func openBlocking(t *testing.T, h *store.Handle, opts ...Option) *Blocking {
	t.Helper()
	b, err := OpenBlocking(h, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { b.Dispose(context.Background()) })
	return b
}

func countRows(t *testing.T, ctx context.Context, h *store.Handle, query string) int64 {
	t.Helper()
	stmt, err := h.Prepare(ctx, query)
	require.NoError(t, err)
	defer stmt.Finalize()
	ok, err := stmt.Step(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	return stmt.Int64(0)
}
