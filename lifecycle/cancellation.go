// Package lifecycle implements FlowCoro-Go's cooperative cancellation,
// per-coroutine state machine, process-wide lifecycle counters, and pooled
// coroutine records (specification §3/§4.7).
package lifecycle

import (
	"sync"
	"sync/atomic"

	"github.com/flowcoro/flowcoro/flowerr"
)

// CancellationToken is a copyable observer of a CancellationSource's shared
// state: is_cancelled / register_callback, grounded on the RAII-registration
// shape used throughout the pack (e.g. longpoll's context-first APIs), built
// from scratch in the teacher's idiom since no single teacher file implements
// exactly this.
type CancellationToken struct {
	state *cancelState
}

type cancelState struct {
	cancelled atomic.Bool
	mu        sync.Mutex
	callbacks []func()
}

func newCancelState() *cancelState {
	return &cancelState{}
}

func (s *cancelState) cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	cbs := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil { // nil marks a callback removed by Unregister
			cb()
		}
	}
}

// IsCancelled reports whether the underlying source has fired.
func (t CancellationToken) IsCancelled() bool {
	if t.state == nil {
		return false
	}
	return t.state.cancelled.Load()
}

// ThrowIfCancelled returns flowerr.ErrCancelled if the token has fired, nil
// otherwise. Named to mirror the spec's throw_if_cancelled() in idiomatic
// Go error-return form.
func (t CancellationToken) ThrowIfCancelled() error {
	if t.IsCancelled() {
		return flowerr.ErrCancelled
	}
	return nil
}

// Registration is the RAII handle returned by RegisterCallback; calling
// Unregister before the token fires prevents cb from ever running.
type Registration struct {
	unregister func()
}

// Unregister removes the callback if it has not already fired. Safe to call
// more than once, and safe to call after the callback has already run.
func (r Registration) Unregister() {
	if r.unregister != nil {
		r.unregister()
	}
}

// RegisterCallback runs cb exactly once when the token's source cancels. If
// the token has already fired, cb runs immediately (inline, synchronously),
// matching "subsequent callback registrations run immediately" (spec
// Cancellation state invariant).
func (t CancellationToken) RegisterCallback(cb func()) Registration {
	if t.state == nil || cb == nil {
		return Registration{}
	}
	s := t.state
	s.mu.Lock()
	if s.cancelled.Load() {
		s.mu.Unlock()
		cb()
		return Registration{}
	}
	idx := len(s.callbacks)
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()

	return Registration{unregister: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.callbacks) && s.callbacks[idx] != nil {
			s.callbacks[idx] = nil
		}
	}}
}

// CancellationSource is the sole owner of the right to cancel its shared
// state; non-copyable by convention (holds a pointer receiver only).
type CancellationSource struct {
	state *cancelState
}

// NewCancellationSource constructs a fresh, uncancelled source.
func NewCancellationSource() *CancellationSource {
	return &CancellationSource{state: newCancelState()}
}

// Cancel transitions the source to cancelled, running every registered
// callback exactly once. Idempotent.
func (s *CancellationSource) Cancel() {
	s.state.cancel()
}

// IsCancelled reports the source's current state.
func (s *CancellationSource) IsCancelled() bool {
	return s.state.cancelled.Load()
}

// Token returns a CancellationToken observing this source. Any number of
// tokens may be produced; all share the same underlying state.
func (s *CancellationSource) Token() CancellationToken {
	return CancellationToken{state: s.state}
}

// CombineTokens returns a token that fires when ANY of the input tokens
// fires, implemented by registering a callback on each input that cancels
// the combined source exactly once (first-writer-wins via the combined
// source's own cancelled CAS).
func CombineTokens(tokens ...CancellationToken) CancellationToken {
	combined := NewCancellationSource()
	for _, t := range tokens {
		t.RegisterCallback(combined.Cancel)
	}
	return combined.Token()
}
