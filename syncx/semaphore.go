package syncx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowcoro/flowcoro/flowloop"
)

// AsyncSemaphore is a coroutine-aware counting semaphore (spec §4.8):
// fast-path decrement-if-positive via CAS, else enqueue under the mutex
// (re-checking after locking to avoid a lost wakeup between the failed CAS
// and the enqueue).
type AsyncSemaphore struct {
	count atomic.Int64
	mu    sync.Mutex
	q     waitQueue
}

// NewAsyncSemaphore constructs a semaphore with n initial permits. mgr may
// be nil.
func NewAsyncSemaphore(mgr *flowloop.Manager, n int64) *AsyncSemaphore {
	s := &AsyncSemaphore{q: newWaitQueue(mgr)}
	s.count.Store(n)
	return s
}

func (s *AsyncSemaphore) tryAcquireFast() bool {
	for {
		c := s.count.Load()
		if c <= 0 {
			return false
		}
		if s.count.CompareAndSwap(c, c-1) {
			return true
		}
	}
}

// Acquire takes one permit, suspending until one is available or ctx is
// done.
func (s *AsyncSemaphore) Acquire(ctx context.Context) error {
	if s.tryAcquireFast() {
		return nil
	}

	s.mu.Lock()
	// re-check under the lock: a Release may have incremented count between
	// our failed fast-path CAS and acquiring mu.
	if s.tryAcquireFast() {
		s.mu.Unlock()
		return nil
	}
	w := s.q.push()
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		removed := s.q.remove(w)
		s.mu.Unlock()
		if removed {
			return ctx.Err()
		}
		// a Release already handed us the permit; pass it along instead of
		// losing it.
		<-w.ready
		s.Release()
		return ctx.Err()
	}
}

// TryAcquire attempts the fast-path CAS decrement without suspending.
func (s *AsyncSemaphore) TryAcquire() bool { return s.tryAcquireFast() }

// Release returns one permit. If a waiter is queued, the permit transfers
// directly to it (count is not incremented); otherwise count increments.
func (s *AsyncSemaphore) Release() {
	s.mu.Lock()
	if s.q.len() > 0 {
		s.q.popOne()
		s.mu.Unlock()
		return
	}
	// increment under mu so Acquire's locked re-check cannot miss it.
	s.count.Add(1)
	s.mu.Unlock()
}
