package syncx

import (
	"context"
	"sync"

	"github.com/flowcoro/flowcoro/flowloop"
)

// AsyncCondVar is a coroutine-aware condition variable (spec §4.8):
// Wait enqueues and suspends, NotifyOne dequeues and reschedules one waiter,
// NotifyAll drains the whole queue. No spurious wakeups are ever emitted by
// this implementation, but callers should still re-check their predicate
// after Wait returns, per the spec's note.
type AsyncCondVar struct {
	mu sync.Mutex
	q  waitQueue
}

// NewAsyncCondVar constructs a condition variable. mgr may be nil.
func NewAsyncCondVar(mgr *flowloop.Manager) *AsyncCondVar {
	return &AsyncCondVar{q: newWaitQueue(mgr)}
}

// Wait suspends the caller until Notified or ctx is done. Callers are
// expected to hold their own external lock guarding the predicate being
// waited on and release it before calling Wait (mirroring sync.Cond's
// Locker contract), since AsyncCondVar itself does not own any
// predicate-protecting lock.
func (c *AsyncCondVar) Wait(ctx context.Context) error {
	c.mu.Lock()
	w := c.q.push()
	c.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		removed := c.q.remove(w)
		c.mu.Unlock()
		if removed {
			return ctx.Err()
		}
		<-w.ready // already notified concurrently with cancellation; drain it
		return ctx.Err()
	}
}

// NotifyOne wakes the single oldest waiter, if any.
func (c *AsyncCondVar) NotifyOne() {
	c.mu.Lock()
	c.q.popOne()
	c.mu.Unlock()
}

// NotifyAll wakes every waiter.
func (c *AsyncCondVar) NotifyAll() {
	c.mu.Lock()
	c.q.popAll()
	c.mu.Unlock()
}
