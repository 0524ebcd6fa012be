package flowcoro

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowcoro/flowcoro/task"
	"github.com/flowcoro/flowcoro/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestConfigureRunsAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)
	rt := Configure(Config{WorkerCount: 2})

	tk := task.Go(rt.Manager, func(ctx context.Context) (int, error) { return 7, nil })
	v, err := tk.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	fut, err := workerpool.Enqueue(rt.Workers, func() (int, error) { return 9, nil })
	require.NoError(t, err)
	got, err := fut.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, got)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rt.Shutdown(ctx))
}

func TestDefaultIsASingleton(t *testing.T) {
	defer goleak.VerifyNone(t)
	defaultMu.Lock()
	defaultOnce = sync.Once{}
	defaultRt = nil
	defaultMu.Unlock()

	a := Default()
	b := Default()
	assert.Same(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}
