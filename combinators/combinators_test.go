package combinators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowcoro/flowcoro/flowerr"
	"github.com/flowcoro/flowcoro/flowloop"
	"github.com/flowcoro/flowcoro/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSleepForNoManagerHonorsDuration(t *testing.T) {
	defer goleak.VerifyNone(t)
	start := time.Now()
	err := SleepFor(context.Background(), nil, 15*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSleepForNoManagerHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := SleepFor(ctx, nil, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSleepForWithManagerFiresViaTimer(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := flowloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)
	defer func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), time.Second)
		defer shCancel()
		_ = mgr.Shutdown(shCtx)
	}()

	start := time.Now()
	err := SleepFor(context.Background(), mgr, 15*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestWhenAllReturnsAllResultsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	t1 := task.Go(nil, func(ctx context.Context) (int, error) { return 1, nil })
	t2 := task.Go(nil, func(ctx context.Context) (int, error) {
		time.Sleep(5 * time.Millisecond)
		return 2, nil
	})
	t3 := task.Go(nil, func(ctx context.Context) (int, error) { return 3, nil })

	results, err := WhenAll(context.Background(), t1, t2, t3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)
}

func TestWhenAllPropagatesFirstError(t *testing.T) {
	defer goleak.VerifyNone(t)
	boom := errors.New("boom")
	t1 := task.Go(nil, func(ctx context.Context) (int, error) { return 0, boom })
	t2 := task.Go(nil, func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 2, nil
	})

	_, err := WhenAll(context.Background(), t1, t2)
	assert.ErrorIs(t, err, boom)
}

func TestWhenAllSettledNeverFailsAsAWhole(t *testing.T) {
	defer goleak.VerifyNone(t)
	boom := errors.New("boom")
	t1 := task.Go(nil, func(ctx context.Context) (int, error) { return 1, nil })
	t2 := task.Go(nil, func(ctx context.Context) (int, error) { return 0, boom })

	results := WhenAllSettled(context.Background(), t1, t2)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
}

func TestWhenAnyReturnsFirstCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)
	slow := task.Go(nil, func(ctx context.Context) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 1, nil
	})
	fast := task.Go(nil, func(ctx context.Context) (int, error) { return 2, nil })

	idx, v, err := WhenAny(context.Background(), slow, fast)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, v)
}

func TestWhenAnyEmptyReturnsInvalidArgument(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, _, err := WhenAny[int](context.Background())
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestWhenRaceIsAliasForWhenAny(t *testing.T) {
	defer goleak.VerifyNone(t)
	fast := task.Go(nil, func(ctx context.Context) (int, error) { return 42, nil })
	slow := task.Go(nil, func(ctx context.Context) (int, error) {
		time.Sleep(50 * time.Millisecond)
		return 0, nil
	})

	idx, v, err := WhenRace(context.Background(), fast, slow)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 42, v)
}

func TestSyncWaitReturnsTaskResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := flowloop.New()
	tk := task.Go(mgr, func(ctx context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "done", nil
	})

	v, err := SyncWait(mgr, tk)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
}

func TestSyncWaitPanicsWhenCalledFromManagerGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)
	mgr := flowloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panicked := make(chan any, 1)
	go func() {
		_ = mgr.Run(ctx)
	}()

	// Give Run a chance to claim the runner id, then schedule a handle that
	// calls SyncWait reentrantly from the manager's own goroutine.
	time.Sleep(10 * time.Millisecond)
	tk := task.Go(nil, func(ctx context.Context) (int, error) { return 1, nil })
	_ = mgr.ScheduleResume(func() {
		defer func() { panicked <- recover() }()
		_, _ = SyncWait(mgr, tk)
	})

	select {
	case r := <-panicked:
		require.NotNil(t, r)
		assert.ErrorIs(t, r.(error), flowerr.ErrLogicViolation)
	case <-time.After(time.Second):
		t.Fatal("reentrant SyncWait never panicked")
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), time.Second)
	defer shCancel()
	_ = mgr.Shutdown(shCtx)
}
