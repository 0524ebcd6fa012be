package syncx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestAsyncCondVarNotifyOneWakesSingleWaiter(t *testing.T) {
	defer goleak.VerifyNone(t)
	cv := NewAsyncCondVar(nil)

	var woke atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			require.NoError(t, cv.Wait(context.Background()))
			woke.Add(1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	cv.NotifyOne()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), woke.Load())

	cv.NotifyOne()
	wg.Wait()
	assert.Equal(t, int32(2), woke.Load())
}

func TestAsyncCondVarNotifyAllWakesEveryWaiter(t *testing.T) {
	defer goleak.VerifyNone(t)
	cv := NewAsyncCondVar(nil)

	var wg sync.WaitGroup
	const n = 10
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			require.NoError(t, cv.Wait(context.Background()))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	cv.NotifyAll()
	wg.Wait()
}

func TestAsyncCondVarWaitHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	cv := NewAsyncCondVar(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := cv.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
