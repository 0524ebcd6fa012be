// Package syncx implements FlowCoro-Go's coroutine-aware synchronization
// primitives (specification §4.8): AsyncMutex, AsyncSemaphore, AsyncCondVar,
// and Channel[T]. None of these block an OS thread; every suspended waiter
// is a goroutine parked on a private notification channel, and "resuming"
// it means closing that channel - optionally rescheduled through a
// flowloop.Manager so every resumption in the runtime funnels through one
// place, per spec §5's scheduling model.
//
// The waiter-queue mechanics here are grounded on longpoll/channel.go's
// shape for generic, context-first, channel-draining APIs, combined with
// the teacher's FIFO waiter-queue convention used throughout eventloop.
package syncx

import (
	"github.com/flowcoro/flowcoro/flowloop"
)

// waiter is one parked goroutine: closing ready resumes it.
type waiter struct {
	ready     chan struct{}
	cancelled bool
}

// waitQueue is a FIFO queue of waiters guarded by an external mutex (the
// primitive's own mu); popOne/popAll reschedule wakeups through mgr if
// set, or run them inline otherwise (mgr may legitimately be nil: a
// primitive created without one degrades to closing channels directly on
// the calling goroutine, still correct, just not funneled through a single
// driver).
type waitQueue struct {
	mgr   *flowloop.Manager
	items []*waiter
}

func newWaitQueue(mgr *flowloop.Manager) waitQueue {
	return waitQueue{mgr: mgr}
}

// push enqueues a new waiter and returns it; the caller selects on
// w.ready/ctx.Done() while holding no lock.
func (q *waitQueue) push() *waiter {
	w := &waiter{ready: make(chan struct{})}
	q.items = append(q.items, w)
	return w
}

// remove drops w from the queue if it is still queued (called after a
// context cancellation, under the same lock as push/pop). Returns true if w
// was found and removed before anyone popped it.
func (q *waitQueue) remove(w *waiter) bool {
	for i, item := range q.items {
		if item == w {
			q.items = append(q.items[:i], q.items[i+1:]...)
			w.cancelled = true
			return true
		}
	}
	return false
}

// popOne dequeues and resumes the single oldest waiter, if any.
func (q *waitQueue) popOne() {
	if len(q.items) == 0 {
		return
	}
	w := q.items[0]
	q.items = q.items[1:]
	q.resume(w)
}

// popAll dequeues and resumes every waiter.
func (q *waitQueue) popAll() {
	items := q.items
	q.items = nil
	for _, w := range items {
		q.resume(w)
	}
}

func (q *waitQueue) resume(w *waiter) {
	if q.mgr != nil {
		q.mgr.ScheduleResume(func() { close(w.ready) })
		return
	}
	close(w.ready)
}

func (q *waitQueue) len() int { return len(q.items) }
