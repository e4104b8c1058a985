package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/litelease/internal/store"
)

type ownerKey struct{}

// owners is the chain of executor tokens a context has passed through. An
// operation running on executor A that blocks on executor B carries both, so
// B's operation may re-enter A inline while A is parked waiting for it.
type owners struct {
	token  string
	parent *owners
}

func withOwner(ctx context.Context, token string) context.Context {
	parent, _ := ctx.Value(ownerKey{}).(*owners)
	return context.WithValue(ctx, ownerKey{}, &owners{token: token, parent: parent})
}

func ownedBy(ctx context.Context, token string) bool {
	for o, _ := ctx.Value(ownerKey{}).(*owners); o != nil; o = o.parent {
		if o.token == token {
			return true
		}
	}
	return false
}

// executor runs a lease's operations one at a time on its own goroutine.
type executor struct {
	token   string
	handle  *store.Handle
	holder  store.LeaseHolder
	queue   *jobQueue
	stopped chan struct{}
}

// newExecutor starts the worker goroutine. When the queue is closed and
// drained the worker releases holder's slot on handle and exits, so the slot
// is never free while an operation of this lease can still run.
func newExecutor(h *store.Handle, holder store.LeaseHolder) *executor {
	e := &executor{
		token:   uuid.Must(uuid.NewV7()).String(),
		handle:  h,
		holder:  holder,
		queue:   newJobQueue(),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *executor) run() {
	defer close(e.stopped)
	defer e.handle.UnregisterLease(e.holder)

	for {
		if j, ok := e.queue.TryDequeue(); ok {
			e.execute(j)
			continue
		}
		if e.queue.Drained() {
			return
		}
		<-e.queue.Wait()
	}
}

func (e *executor) execute(j job) {
	err := e.inline(j.ctx, j.op)
	if j.done != nil {
		j.done <- err
		return
	}
	if err != nil && j.onErr != nil {
		j.onErr(err)
	}
}

// owns reports whether ctx was issued by this executor.
func (e *executor) owns(ctx context.Context) bool {
	return ownedBy(ctx, e.token)
}

// inline runs op on the calling goroutine as the owner of this executor.
func (e *executor) inline(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	return op(withOwner(ctx, e.token), e.handle)
}

// dispatch queues op and waits for its result. If ctx ends first the wait is
// abandoned but op still runs.
func (e *executor) dispatch(ctx context.Context, op Operation) error {
	done := make(chan error, 1)
	if !e.queue.Enqueue(job{ctx: ctx, op: op, done: done}) {
		return ErrDisposed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit queues op without waiting. Returns false once the executor is closed.
func (e *executor) submit(ctx context.Context, op Operation, onErr func(error)) bool {
	return e.queue.Enqueue(job{ctx: context.WithoutCancel(ctx), op: op, onErr: onErr})
}

// close stops accepting work. Queued operations still run.
func (e *executor) close() {
	e.queue.Close()
}
