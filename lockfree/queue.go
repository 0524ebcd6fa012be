// Package lockfree implements the runtime's two lock-free conduits: an
// unbounded MPMC Queue and a bounded SPSC Ring, both grounded on the
// teacher's eventloop/ingress.go (ChunkedIngress's node-based recycling
// shape, MicrotaskRing's validity-flagged slots) generalized from "caller
// holds the external mutex" to genuinely lock-free via atomic.Pointer CAS,
// per the specification's §4.2/§4.3.
package lockfree

import (
	"sync/atomic"
)

// node is a Michael-Scott queue node. data is nil once taken by a dequeuer,
// mirroring the specification's "atomic exchange on the data pointer, losing
// threads re-loop" contract.
type node[T any] struct {
	next atomic.Pointer[node[T]]
	data atomic.Pointer[T]
}

// Queue is an unbounded, multi-producer multi-consumer FIFO queue.
// It uses a Michael-Scott algorithm with a dummy head node (Invariant 5: head
// is never nil) so that enqueue/dequeue never need to special-case the empty
// queue.
//
// Queue is safe for concurrent use by any number of producers and consumers.
// After Close, further Enqueue calls silently drop their argument (shutdown
// safety, §4.2/§5): producers racing a concurrent Close never see a panic or
// error, they simply stop being able to hand off work.
type Queue[T any] struct {
	head      atomic.Pointer[node[T]]
	tail      atomic.Pointer[node[T]]
	destroyed atomic.Bool
	length    atomic.Int64
}

// NewQueue returns an empty, ready-to-use Queue.
func NewQueue[T any]() *Queue[T] {
	dummy := &node[T]{}
	q := &Queue[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

// Enqueue appends x to the tail of the queue. If the queue has been Closed,
// Enqueue drops x and returns false; otherwise it returns true.
func (q *Queue[T]) Enqueue(x T) bool {
	if q.destroyed.Load() {
		return false
	}

	n := &node[T]{}
	n.data.Store(&x)

	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue // tail changed concurrently, retry
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// Help advance tail, then we're done (linearization point).
				q.tail.CompareAndSwap(tail, n)
				q.length.Add(1)
				return true
			}
		} else {
			// tail lagged behind; help advance it and retry.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// Dequeue removes and returns the item at the head of the queue. It returns
// false if the queue is empty. Close does not stop Dequeue: items enqueued
// before Close can still be drained.
func (q *Queue[T]) Dequeue() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()

		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				var zero T
				return zero, false // genuinely empty
			}
			// tail lagged behind a concurrent enqueue; help advance it.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		dataPtr := next.data.Swap(nil)
		if dataPtr == nil {
			// another dequeuer already took this node's data; advance past it.
			if q.head.CompareAndSwap(head, next) {
				continue
			}
			continue
		}

		// Whether or not we win the head-advance CAS, the data swap above
		// already gave us exclusive ownership of dataPtr: a losing racer
		// would have observed a nil swap result and looped instead.
		q.head.CompareAndSwap(head, next)
		q.length.Add(-1)
		return *dataPtr, true
	}
}

// Len returns an approximation of the current queue length. Because Enqueue
// and Dequeue race independently, Len is only a snapshot.
func (q *Queue[T]) Len() int {
	if n := q.length.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Close marks the queue as destroyed: subsequent Enqueue calls drop their
// argument, and Dequeue continues to drain whatever remains until empty.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.destroyed.Store(true)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	return q.destroyed.Load()
}

// Drain removes and discards all remaining items, for use during shutdown
// once no more producers can be enqueuing (i.e. after Close).
func (q *Queue[T]) Drain() {
	for {
		if _, ok := q.Dequeue(); !ok {
			return
		}
	}
}
