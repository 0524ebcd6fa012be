package lifecycle

import "sync/atomic"

// SafeHandle wraps a resource with an atomic destroyed flag and an
// idempotent, panic-swallowing Destroy, grounded on the teacher's
// closeOnce-guarded closeFDs idempotency pattern (eventloop/loop.go). Go has
// no move semantics, so "move-only" is enforced by convention: callers
// should treat a SafeHandle as consumed once passed elsewhere, and Valid()
// lets a caller check before using it.
type SafeHandle struct {
	destroyed atomic.Bool
	destroy   func()
}

// NewSafeHandle wraps destroy, which runs at most once regardless of how
// many times Destroy is called.
func NewSafeHandle(destroy func()) *SafeHandle {
	return &SafeHandle{destroy: destroy}
}

// Valid reports whether the handle has not yet been destroyed.
func (h *SafeHandle) Valid() bool { return !h.destroyed.Load() }

// Done is an alias for !Valid(), mirroring the spec's done() query.
func (h *SafeHandle) Done() bool { return h.destroyed.Load() }

// Destroy runs the wrapped destructor exactly once. Any panic raised by the
// destructor is recovered and discarded: destruction must never propagate a
// panic to the caller (spec: "exception-swallowing").
func (h *SafeHandle) Destroy() {
	if !h.destroyed.CompareAndSwap(false, true) {
		return
	}
	if h.destroy == nil {
		return
	}
	defer func() { recover() }()
	h.destroy()
}
