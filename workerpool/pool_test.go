package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPoolEnqueueVoidRunsOnWorker(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 2})
	defer p.Close()

	done := make(chan struct{})
	require.NoError(t, p.EnqueueVoid(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestPoolEnqueueReturnsResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 2})
	defer p.Close()

	fut, err := Enqueue(p, func() (int, error) { return 99, nil })
	require.NoError(t, err)
	v, err := fut.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestPoolEnqueuePropagatesError(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 1})
	defer p.Close()

	wantErr := errors.New("nope")
	fut, err := Enqueue(p, func() (int, error) { return 0, wantErr })
	require.NoError(t, err)
	_, err = fut.Get(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestPoolRunsAllSubmittedJobsUnderConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 4})
	defer p.Close()

	const n = 2000
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, p.EnqueueVoid(func() {
			count.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(n), count.Load())
}

func TestPoolCloseDrainsRemainingWork(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 2})

	var count atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, p.EnqueueVoid(func() { count.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int64(50), count.Load())
}

func TestPoolEnqueueAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 1})
	p.Close()

	err := p.EnqueueVoid(func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolCloseContextReturnsOnDeadlineAndDetachesStuckWorker(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 1})

	blockedStarted := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.EnqueueVoid(func() {
		close(blockedStarted)
		<-release
	}))
	<-blockedStarted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.CloseContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Let the detached worker finish so the test doesn't leak a goroutine.
	close(release)
	p.Close()
}

func TestPoolCloseContextReturnsNilWhenWorkersFinishInTime(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 1})
	require.NoError(t, p.EnqueueVoid(func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.CloseContext(ctx))
}

func TestPoolPanickingJobDoesNotKillWorker(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := NewPool(Config{WorkerCount: 1})
	defer p.Close()

	require.NoError(t, p.EnqueueVoid(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.EnqueueVoid(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}
