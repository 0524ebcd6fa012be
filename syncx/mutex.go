package syncx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowcoro/flowcoro/flowloop"
)

// AsyncMutex is a coroutine-aware mutex (spec §4.8): a fast-path atomic CAS
// acquire, falling back to a FIFO waiter queue rescheduled through a
// flowloop.Manager on unlock. Ownership transfers directly from Unlock to
// the next waiter without the locked flag ever going low, matching the
// spec's "ownership transfers without the locked flag going low".
type AsyncMutex struct {
	locked atomic.Bool
	mu     sync.Mutex
	q      waitQueue
}

// NewAsyncMutex constructs an unlocked mutex. mgr may be nil.
func NewAsyncMutex(mgr *flowloop.Manager) *AsyncMutex {
	return &AsyncMutex{q: newWaitQueue(mgr)}
}

// Lock acquires the mutex, suspending (without blocking an OS thread) until
// it is available or ctx is done.
func (m *AsyncMutex) Lock(ctx context.Context) error {
	if m.locked.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	// re-check under the lock: an Unlock may have cleared the flag between
	// our failed fast-path CAS and acquiring mu, with no waiter to hand to.
	if m.locked.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return nil
	}
	w := m.q.push()
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		removed := m.q.remove(w)
		m.mu.Unlock()
		if removed {
			return ctx.Err()
		}
		// already popped and handed ownership to us concurrently with the
		// context firing: take it, then immediately release it back so we
		// don't leak a permanently-locked mutex.
		<-w.ready
		m.Unlock()
		return ctx.Err()
	}
}

// TryLock attempts the fast-path CAS acquire without suspending.
func (m *AsyncMutex) TryLock() bool {
	return m.locked.CompareAndSwap(false, true)
}

// Unlock releases the mutex. If a waiter is queued, ownership transfers to
// it directly (the locked flag stays true); otherwise the mutex goes idle.
func (m *AsyncMutex) Unlock() {
	m.mu.Lock()
	if m.q.len() > 0 {
		m.q.popOne()
		m.mu.Unlock()
		return
	}
	m.locked.Store(false)
	m.mu.Unlock()
}
