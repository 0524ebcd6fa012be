package lockfree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRingCapacityRoundsToPowerOfTwo(t *testing.T) {
	r := NewRing[int](5)
	assert.Equal(t, 8, r.Cap())
}

func TestRingPushPopOrderPreserved(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, r.Push(i))
	}
	assert.True(t, r.Full())
	assert.False(t, r.Push(4), "push on a full ring must fail")

	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, r.Empty())
	_, ok := r.Pop()
	assert.False(t, ok)
}

func TestRingPushPopBatchDoesNotSplitAtWrap(t *testing.T) {
	r := NewRing[int](4)
	// fill 3 of 4 then drain 2, so tail wraps at index 3->0 mid-batch.
	require.True(t, r.Push(0))
	require.True(t, r.Push(1))
	require.True(t, r.Push(2))
	v, _ := r.Pop()
	assert.Equal(t, 0, v)
	v, _ = r.Pop()
	assert.Equal(t, 1, v)

	n := r.PushBatch([]int{10, 11, 12, 13})
	assert.Less(t, n, 4, "batch push stops at the wrap boundary rather than splitting internally")
}

func TestRingContinuousProducerConsumerNoLossNoDuplication(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := NewRing[int](64)
	const n = 50000
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			for !r.Push(i) {
			}
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		if v, ok := r.Pop(); ok {
			got = append(got, v)
		}
	}
	<-done

	for i := 0; i < n; i++ {
		require.Equal(t, i, got[i])
	}
}
