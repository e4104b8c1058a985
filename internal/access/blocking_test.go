package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litelease/internal/store"
)

// withDeadline fails the test instead of hanging when fn deadlocks.
func withDeadline(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("deadlock: operation did not complete")
	}
}

func TestBlocking_RunsStatements(t *testing.T) {
	h := newTestHandle(t)
	b := openBlocking(t, h)
	ctx := context.Background()

	err := b.WithAccess(ctx, nil, func(ctx context.Context, h *store.Handle) error {
		if err := h.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
			return err
		}
		return h.Exec(ctx, `INSERT INTO items (id, name) VALUES (1, 'one'), (2, 'two')`)
	})
	require.NoError(t, err)

	n, err := Query(ctx, b, nil, func(ctx context.Context, h *store.Handle) (int64, error) {
		return countRows(t, ctx, h, `SELECT count(*) FROM items`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBlocking_PropagatesErrors(t *testing.T) {
	h := newTestHandle(t)
	b := openBlocking(t, h)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := b.WithAccess(ctx, nil, func(context.Context, *store.Handle) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	err = b.WithAccess(ctx, nil, func(ctx context.Context, h *store.Handle) error {
		return h.Exec(ctx, `SELECT * FROM missing`)
	})
	assert.ErrorIs(t, err, store.ErrEngineCall)

	_, err = Query(ctx, b, nil, func(context.Context, *store.Handle) (string, error) { return "ignored", sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestBlocking_Serializes(t *testing.T) {
	h := newTestHandle(t)
	b := openBlocking(t, h)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.WithAccess(context.Background(), nil, func(context.Context, *store.Handle) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestBlocking_ReentrantViaContext(t *testing.T) {
	h := newTestHandle(t)
	b := openBlocking(t, h)

	withDeadline(t, 2*time.Second, func() {
		var inner bool
		err := b.WithAccess(context.Background(), nil, func(ctx context.Context, _ *store.Handle) error {
			return b.WithAccess(ctx, nil, func(context.Context, *store.Handle) error {
				inner = true
				return nil
			})
		})
		require.NoError(t, err)
		assert.True(t, inner)
	})
}

func TestBlocking_ReentrantViaParent(t *testing.T) {
	h := newTestHandle(t)
	b := openBlocking(t, h)

	withDeadline(t, 2*time.Second, func() {
		var inner bool
		err := b.WithAccess(context.Background(), nil, func(_ context.Context, _ *store.Handle) error {
			// A fresh context carries no ownership; the parent lease does.
			return b.WithAccess(context.Background(), b, func(context.Context, *store.Handle) error {
				inner = true
				return nil
			})
		})
		require.NoError(t, err)
		assert.True(t, inner)
	})
}

func TestBlocking_InvalidParent(t *testing.T) {
	b := openBlocking(t, newTestHandle(t))
	other := openBlocking(t, newTestHandle(t))

	err := b.WithAccess(context.Background(), other, func(context.Context, *store.Handle) error {
		t.Error("operation ran with a foreign parent")
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidNestedAccess)
	assert.Contains(t, err.Error(), other.LeaseID())
}

func TestBlocking_CrossLeaseReentry(t *testing.T) {
	a := openBlocking(t, newTestHandle(t))
	b := openBlocking(t, newTestHandle(t))

	withDeadline(t, 2*time.Second, func() {
		var reached bool
		err := a.WithAccess(context.Background(), nil, func(ctx context.Context, _ *store.Handle) error {
			return b.WithAccess(ctx, nil, func(ctx context.Context, _ *store.Handle) error {
				// a's executor is parked waiting for b; re-entering a runs inline.
				return a.WithAccess(ctx, nil, func(context.Context, *store.Handle) error {
					reached = true
					return nil
				})
			})
		})
		require.NoError(t, err)
		assert.True(t, reached)
	})
}

func TestBlocking_PanicRecovered(t *testing.T) {
	b := openBlocking(t, newTestHandle(t))
	ctx := context.Background()

	err := b.WithAccess(ctx, nil, func(context.Context, *store.Handle) error {
		panic("bad operation")
	})
	assert.ErrorIs(t, err, ErrOperationPanicked)
	assert.Contains(t, err.Error(), "bad operation")

	// The executor survives.
	got, err := Query(ctx, b, nil, func(context.Context, *store.Handle) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestBlocking_ContextCancelledWhileWaiting(t *testing.T) {
	b := openBlocking(t, newTestHandle(t))

	started := make(chan struct{})
	release := make(chan struct{})
	go b.WithAccess(context.Background(), nil, func(context.Context, *store.Handle) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ran atomic.Bool
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.WithAccess(ctx, nil, func(context.Context, *store.Handle) error {
		ran.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	// Abandoning the wait does not cancel the queued operation.
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestBlocking_OperationsRunOffCallerGoroutine(t *testing.T) {
	b := openBlocking(t, newTestHandle(t))
	ctx := context.Background()

	// Operations dispatched from the caller see a context marked as owned by
	// the executor; the caller's own context is not.
	assert.False(t, b.exec.owns(ctx))
	err := b.WithAccess(ctx, nil, func(ctx context.Context, _ *store.Handle) error {
		assert.True(t, b.exec.owns(ctx))
		return nil
	})
	require.NoError(t, err)
}
