package lifecycle

import (
	"testing"
	"time"

	"github.com/flowcoro/flowcoro/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(name string) *Record {
	return &Record{
		Handle: NewSafeHandle(func() {}),
		Name:   name,
	}
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewPool(PoolConfig{MinSize: 1, MaxSize: 4, IdleTimeout: time.Hour}, func() *Record {
		return newTestRecord("worker")
	}, metrics.NewRegistry(), "test_pool_roundtrip")
	defer p.Close()

	stats := p.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Pooled)

	r := p.Acquire()
	require.NotNil(t, r)
	assert.Equal(t, int64(1), p.Stats().Hits)

	p.Release(r)
	assert.Equal(t, 0, p.Stats().Active)
}

func TestPoolAcquireBeyondIdleAllocatesFresh(t *testing.T) {
	p := NewPool(PoolConfig{MinSize: 0, MaxSize: 4, IdleTimeout: time.Hour}, func() *Record {
		return newTestRecord("worker")
	}, metrics.NewRegistry(), "test_pool_fresh")
	defer p.Close()

	r := p.Acquire()
	require.NotNil(t, r)
	stats := p.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestPoolReleaseBeyondMaxSizeDestroysRecord(t *testing.T) {
	destroyed := 0
	p := NewPool(PoolConfig{MinSize: 0, MaxSize: 1, IdleTimeout: time.Hour}, func() *Record {
		return &Record{Handle: NewSafeHandle(func() { destroyed++ })}
	}, metrics.NewRegistry(), "test_pool_overflow")
	defer p.Close()

	r1 := p.Acquire()
	r2 := p.Acquire()
	p.Release(r1)
	p.Release(r2) // pool already has r1 idle and MaxSize=1, so r2 must be destroyed

	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 1, p.Stats().Total)
}

func TestPoolHitRatioComputedFromHitsAndMisses(t *testing.T) {
	p := NewPool(PoolConfig{MinSize: 1, MaxSize: 4, IdleTimeout: time.Hour}, func() *Record {
		return newTestRecord("worker")
	}, metrics.NewRegistry(), "test_pool_ratio")
	defer p.Close()

	r := p.Acquire() // hit, since MinSize primed one idle record
	p.Release(r)
	_ = p.Acquire() // hit again

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.InDelta(t, 1.0, stats.HitRatio, 0.0001)
}
