// Package task implements FlowCoro-Go's Task[T] and awaiter semantics
// (specification §4.6). Go has no stackless-coroutine primitive, so the
// spec's "initial_suspend: suspend-never" contract is realized as: Go[T]
// starts fn's goroutine immediately, and the Go scheduler's own "a freshly
// started goroutine runs until it blocks" behavior gives the eager
// run-until-first-suspension property for free. Suspension points inside fn
// become ordinary receives on channels, flowloop timers, or syncx
// primitives.
//
// The outcome slot is grounded on the teacher's eventloop/promise.go
// (state + result + channel-based notification), generalized from an
// any-typed Result with fan-out-to-many subscribers to a generic tagged
// outcome[T] with the single continuation slot spec §9 calls for.
package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flowcoro/flowcoro/flowerr"
	"github.com/flowcoro/flowcoro/flowloop"
	"github.com/flowcoro/flowcoro/lifecycle"
)

// outcome is the tagged variant stored in a Task's promise slot: exactly one
// of value/err is meaningful, distinguished by whether err is nil.
type outcome[T any] struct {
	value T
	err   error
}

// Task is a handle to an in-flight (or completed) coroutine producing a
// value of type T, grounded on spec §3.1's Task<T> entity.
type Task[T any] struct {
	mgr   *flowloop.Manager
	state *lifecycle.StateManager

	done   chan struct{}
	once   sync.Once
	result atomic.Pointer[outcome[T]]

	contMu sync.Mutex
	cont   func()
	fired  bool

	cancel context.CancelFunc
	token  atomic.Pointer[lifecycle.CancellationToken]
}

// Go starts fn's goroutine immediately (eager launch) and returns a Task[T]
// observing its outcome. mgr is used to reschedule the continuation (if
// any) registered via OnComplete, per spec §4.6's
// "schedule cont on the manager" final-suspend behavior.
func Go[T any](mgr *flowloop.Manager, fn func(ctx context.Context) (T, error)) *Task[T] {
	return GoWithContext(context.Background(), mgr, fn)
}

// GoWithContext is Go, but lets the caller supply the base context observed
// by fn (e.g. one already carrying a deadline or request-scoped values).
func GoWithContext[T any](parent context.Context, mgr *flowloop.Manager, fn func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{
		mgr:   mgr,
		state: lifecycle.NewStateManager(),
		done:  make(chan struct{}),
	}
	t.state.TryTransition(lifecycle.Created, lifecycle.Running)

	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel

	go func() {
		defer cancel()
		defer t.recoverPanic()
		v, err := fn(ctx)
		t.settle(v, err)
	}()

	return t
}

// SetCancellationToken wires tok so the task's context is cancelled as soon
// as tok fires, per spec §4.6's "the promise exposes set_cancellation_token
// (tok)". The token is also consulted by Get/TryGet/GetErrorMessage, so a
// cancelled task's result surfaces flowerr.ErrCancelled regardless of what
// fn itself returned, per spec §5's "a cancelled task's Task<T>::get()
// raises cancelled-error." Must be called before the observing goroutine
// checks ctx, so callers typically call it immediately after Go returns;
// calling it after the task has already completed is a harmless no-op as
// far as cancelling fn goes, but still makes a since-cancelled token visible
// to subsequent Get calls.
func (t *Task[T]) SetCancellationToken(tok lifecycle.CancellationToken) {
	t.token.Store(&tok)
	tok.RegisterCallback(t.cancel)
}

// isCancelled reports whether a registered cancellation token has fired.
func (t *Task[T]) isCancelled() bool {
	tok := t.token.Load()
	return tok != nil && tok.IsCancelled()
}

// resolve applies the cancellation override described at
// SetCancellationToken to a loaded outcome: a fired token always surfaces
// flowerr.ErrCancelled, wrapping fn's own error (if any) so callers can
// still errors.Is/As through to it.
func (t *Task[T]) resolve(o *outcome[T]) (T, error) {
	if t.isCancelled() {
		if o.err != nil {
			return o.value, fmt.Errorf("%w: %w", flowerr.ErrCancelled, o.err)
		}
		return o.value, flowerr.ErrCancelled
	}
	return o.value, o.err
}

func (t *Task[T]) recoverPanic() {
	if r := recover(); r != nil {
		var zero T
		t.settle(zero, flowerr.NewTaskError(r))
	}
}

// settle stores the outcome exactly once, transitions to a terminal state,
// closes done, and fires any registered continuation through the manager.
func (t *Task[T]) settle(v T, err error) {
	t.once.Do(func() {
		t.result.Store(&outcome[T]{value: v, err: err})
		if err != nil {
			t.state.ForceTransition(lifecycle.Completed)
		} else {
			t.state.TryTransition(lifecycle.Running, lifecycle.Completed)
		}
		close(t.done)
		t.fireContinuation()
	})
}

func (t *Task[T]) fireContinuation() {
	t.contMu.Lock()
	cont := t.cont
	t.fired = true
	t.contMu.Unlock()
	if cont != nil && t.mgr != nil {
		t.mgr.ScheduleResume(cont)
	} else if cont != nil {
		cont()
	}
}

// OnComplete registers cont to run (rescheduled through the manager, or
// inline if no manager was supplied) when the task settles. If the task has
// already settled, cont is scheduled immediately. At most one continuation
// may be registered, matching spec §9's "a Task[T] has at most one
// structural continuation" guidance; a second call overwrites the first
// only if the first has not yet fired.
func (t *Task[T]) OnComplete(cont func()) {
	t.contMu.Lock()
	if t.fired {
		t.contMu.Unlock()
		if t.mgr != nil {
			t.mgr.ScheduleResume(cont)
		} else {
			cont()
		}
		return
	}
	t.cont = cont
	t.contMu.Unlock()
}

// Done returns a channel closed when the task settles, for use in select
// statements (the idiomatic Go analogue of await_ready/await_suspend).
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// State returns the task's current lifecycle state.
func (t *Task[T]) State() lifecycle.CoroutineState { return t.state.Load() }

// Get blocks until the task settles, honoring both ctx and any
// cancellation token set via SetCancellationToken, then returns the stored
// value or error (spec §4.6 get(), realized as a channel receive rather
// than a literal spin-wait loop since idiomatic Go never busy-waits an OS
// thread).
func (t *Task[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.resolve(t.result.Load())
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet is the non-blocking variant: ok is false if the task has not yet
// settled, settled with an error, or was cancelled via a registered
// cancellation token.
func (t *Task[T]) TryGet() (value T, ok bool) {
	select {
	case <-t.done:
	default:
		return value, false
	}
	v, err := t.resolve(t.result.Load())
	if err != nil {
		return value, false
	}
	return v, true
}

// GetErrorMessage returns the resolved error's message (see SetCancellationToken
// for the cancellation override), or "" if the task has not settled or
// settled without an error and without a cancellation.
func (t *Task[T]) GetErrorMessage() string {
	select {
	case <-t.done:
	default:
		return ""
	}
	_, err := t.resolve(t.result.Load())
	if err == nil {
		return ""
	}
	return err.Error()
}
