package syncx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowcoro/flowcoro/flowloop"
)

// Channel is a coroutine-aware bounded (or unbounded, if capacity is 0 and
// Unbounded is requested via NewUnboundedChannel) FIFO with two wait-queues
// - senders blocked on full, receivers blocked on empty - an atomic closed
// flag, and a single mutex protecting the buffer and both waiter queues
// (spec §3.1/§4.8). Grounded on longpoll/channel.go's generic,
// context-first blocking API shape, combined with the teacher's FIFO
// waiter-queue convention.
type Channel[T any] struct {
	mu        sync.Mutex
	buf       []T
	capacity  int // 0 with unbounded=true means no capacity limit
	unbounded bool
	closed    atomic.Bool

	senders   waitQueue
	receivers waitQueue
}

// NewChannel constructs a bounded Channel with the given capacity (capacity
// 0 means every send must rendezvous with a waiting receiver). mgr may be
// nil.
func NewChannel[T any](mgr *flowloop.Manager, capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{
		capacity:  capacity,
		senders:   newWaitQueue(mgr),
		receivers: newWaitQueue(mgr),
	}
}

// NewUnboundedChannel constructs a Channel whose buffer has no capacity
// limit; Send never suspends on a full buffer.
func NewUnboundedChannel[T any](mgr *flowloop.Manager) *Channel[T] {
	return &Channel[T]{
		unbounded: true,
		senders:   newWaitQueue(mgr),
		receivers: newWaitQueue(mgr),
	}
}

// Send enqueues x, suspending if the channel is full (bounded, non-zero
// capacity) or rendezvous-blocked (capacity 0) until room is made, the
// channel is closed, or ctx is done. Returns false if the channel is (or
// becomes) closed before x could be sent.
func (c *Channel[T]) Send(ctx context.Context, x T) (bool, error) {
	for {
		c.mu.Lock()
		if c.closed.Load() {
			c.mu.Unlock()
			return false, nil
		}
		if c.canSendLocked() {
			c.buf = append(c.buf, x)
			c.receivers.popOne()
			c.mu.Unlock()
			return true, nil
		}
		w := c.senders.push()
		c.mu.Unlock()

		select {
		case <-w.ready:
			continue // re-check and retry per spec §4.8
		case <-ctx.Done():
			c.mu.Lock()
			removed := c.senders.remove(w)
			c.mu.Unlock()
			if removed {
				return false, ctx.Err()
			}
			<-w.ready
			continue
		}
	}
}

func (c *Channel[T]) canSendLocked() bool {
	if c.unbounded {
		return true
	}
	if c.capacity == 0 {
		return c.receivers.len() > 0
	}
	return len(c.buf) < c.capacity
}

// Recv dequeues a value, suspending while the buffer is empty and the
// channel is open, until a value arrives, the channel closes, or ctx is
// done. ok is false if the channel closed with no buffered value left.
func (c *Channel[T]) Recv(ctx context.Context) (value T, ok bool, err error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			value = c.buf[0]
			c.buf = c.buf[1:]
			c.senders.popOne()
			c.mu.Unlock()
			return value, true, nil
		}
		if c.closed.Load() {
			c.mu.Unlock()
			return value, false, nil
		}
		w := c.receivers.push()
		if c.capacity == 0 && !c.unbounded {
			// rendezvous channel: a receiver arriving wakes a queued sender
			// so it can retry and see receivers.len() > 0.
			c.senders.popOne()
		}
		c.mu.Unlock()

		select {
		case <-w.ready:
			continue
		case <-ctx.Done():
			c.mu.Lock()
			removed := c.receivers.remove(w)
			c.mu.Unlock()
			if removed {
				return value, false, ctx.Err()
			}
			<-w.ready
			continue
		}
	}
}

// Close marks the channel closed and drains both waiter queues so every
// suspended Send/Recv wakes up, re-checks, and returns false/empty. Safe to
// call more than once.
func (c *Channel[T]) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	c.senders.popAll()
	c.receivers.popAll()
	c.mu.Unlock()
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool { return c.closed.Load() }

// Len returns the number of buffered values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
