// Package combinators implements FlowCoro-Go's task composition helpers
// (specification §4.9): SleepFor, WhenAll, WhenAllSettled, WhenAny,
// WhenRace, SyncWait.
package combinators

import (
	"context"
	"time"

	"github.com/flowcoro/flowcoro/flowerr"
	"github.com/flowcoro/flowcoro/flowloop"
	"github.com/flowcoro/flowcoro/task"
	"golang.org/x/sync/errgroup"
)

// SleepFor suspends until d elapses or ctx is done. When mgr is provided the
// wait is scheduled as a manager timer (spec §4.9: "schedules a timer at now
// + duration, resumes on fire"); when mgr is nil it degrades to a plain
// time.Timer, which is still correct but is not funneled through a single
// driver. If mgr has already terminated, SleepFor returns its error at once;
// if mgr terminates while the timer is pending, the timer is dropped without
// firing and SleepFor returns only when ctx is done.
func SleepFor(ctx context.Context, mgr *flowloop.Manager, d time.Duration) error {
	if mgr == nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	cancel, err := mgr.ScheduleAfter(time.Now().Add(d), func() { close(done) })
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// WhenAll completes when every task completes, returning their results in
// input order. It propagates the first error; remaining tasks are still
// awaited (their own cancellation tokens are not touched), but their Get
// calls past the first failure observe the shared derived context canceling
// and return early rather than each task's true completion - grounded on
// golang.org/x/sync/errgroup's cancel-on-first-error group semantics (spec
// §4.9's "when_all").
func WhenAll[T any](ctx context.Context, tasks ...*task.Task[T]) ([]T, error) {
	results := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			v, err := tk.Get(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Settled is one task's outcome in a WhenAllSettled result: exactly one of
// Value/Err is meaningful.
type Settled[T any] struct {
	Value T
	Err   error
}

// WhenAllSettled is like WhenAll but always completes normally, recording a
// per-task success/error Settled record rather than propagating any single
// error.
func WhenAllSettled[T any](ctx context.Context, tasks ...*task.Task[T]) []Settled[T] {
	results := make([]Settled[T], len(tasks))
	var g errgroup.Group
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			v, err := tk.Get(ctx)
			results[i] = Settled[T]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait() // every goroutine above always returns nil; errors live in results
	return results
}

// WhenAny completes when the first of tasks completes, returning its index
// and value. Losers are not cancelled.
func WhenAny[T any](ctx context.Context, tasks ...*task.Task[T]) (index int, value T, err error) {
	if len(tasks) == 0 {
		var zero T
		return -1, zero, flowerr.ErrInvalidArgument
	}

	type outcome struct {
		idx int
		v   T
		err error
	}
	results := make(chan outcome, len(tasks))
	for i, tk := range tasks {
		i, tk := i, tk
		go func() {
			v, err := tk.Get(ctx)
			results <- outcome{idx: i, v: v, err: err}
		}()
	}

	select {
	case o := <-results:
		return o.idx, o.v, o.err
	case <-ctx.Done():
		var zero T
		return -1, zero, ctx.Err()
	}
}

// WhenRace is an alias for WhenAny with identical semantics; the name
// conveys "first result wins" intent at call sites.
func WhenRace[T any](ctx context.Context, tasks ...*task.Task[T]) (index int, value T, err error) {
	return WhenAny(ctx, tasks...)
}

// SyncWait drives mgr's Drive loop on the calling goroutine until tk
// completes, then returns (or propagates) its result. It panics with
// flowerr.ErrLogicViolation if called from mgr's own driving goroutine,
// since that would deadlock the very driver being depended on (spec §4.9,
// §7 "logic-violation").
func SyncWait[T any](mgr *flowloop.Manager, tk *task.Task[T]) (T, error) {
	if mgr.IsManagerGoroutine() {
		panic(flowerr.ErrLogicViolation)
	}

	for {
		select {
		case <-tk.Done():
			return tk.Get(context.Background())
		default:
		}
		mgr.Drive()
		select {
		case <-tk.Done():
			return tk.Get(context.Background())
		case <-time.After(time.Millisecond):
		}
	}
}
