// Package throttle coalesces bursts of work into a single deferred run.
package throttle

import (
	"sync"
	"time"
)

// Throttler runs the most recent work handed to Throttle once the calls have
// been quiet for the requested interval. Each call replaces the pending work
// and restarts the wait; superseded work never runs.
//
// Work runs on a timer goroutine. The zero value is ready to use.
type Throttler struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64

	// running counts work in progress. It is changed under mu, so a timer
	// firing can never race a concurrent Wait.
	running int
	idle    *sync.Cond
}

// New returns an idle Throttler.
func New() *Throttler {
	return &Throttler{}
}

// Throttle schedules work to run after interval, replacing any pending work.
// It never blocks on work.
func (t *Throttler) Throttle(interval time.Duration, work func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	t.pending = work
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(interval, func() { t.fire(gen) })
}

// fire runs the pending work if no later Throttle, Flush or Stop has
// superseded generation gen.
func (t *Throttler) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.pending == nil {
		t.mu.Unlock()
		return
	}
	work := t.take()
	t.running++
	t.mu.Unlock()

	defer t.done()
	work()
}

func (t *Throttler) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	if t.running == 0 && t.idle != nil {
		t.idle.Broadcast()
	}
}

// take clears the pending work and timer. Callers hold mu.
func (t *Throttler) take() func() {
	work := t.pending
	t.pending = nil
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return work
}

// Pending reports whether work is waiting for its timer.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

// Flush runs the pending work now on the calling goroutine, if there is any,
// and reports whether it did.
func (t *Throttler) Flush() bool {
	t.mu.Lock()
	work := t.take()
	if work != nil {
		t.running++
	}
	t.mu.Unlock()

	if work == nil {
		return false
	}
	defer t.done()
	work()
	return true
}

// Stop discards the pending work. A run already in progress is not
// interrupted; use Wait to block until it returns.
func (t *Throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.take()
}

// Wait blocks until no work is running. It must not be called from work.
func (t *Throttler) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.running > 0 {
		if t.idle == nil {
			t.idle = sync.NewCond(&t.mu)
		}
		t.idle.Wait()
	}
}
