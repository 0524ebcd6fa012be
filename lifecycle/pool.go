package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/flowcoro/flowcoro/metrics"
)

// Record is a pooled coroutine record (spec §3.1 "Pooled coroutine
// record"): a safe handle plus created/last-used timestamps, in-use flag,
// reuse count and debug name, for lifecycle pool telemetry.
type Record struct {
	Handle    *SafeHandle
	Name      string
	CreatedAt time.Time
	LastUsed  time.Time
	ReuseCnt  int

	inUse bool
}

// PoolConfig configures a Pool, mirroring spec §6's "Coroutine pool:
// min/max records, idle timeout, cleanup interval".
type PoolConfig struct {
	MinSize         int
	MaxSize         int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

func (c PoolConfig) resolve() PoolConfig {
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 256
	}
	if c.MaxSize < c.MinSize {
		c.MaxSize = c.MinSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = c.IdleTimeout / 2
	}
	return c
}

// Pool manages a set of reusable *Record values, grounded on the teacher's
// registry (eventloop/registry.go): a ring of tracked IDs scanned in batches
// by a background "janitor" goroutine, generalized from weak-pointer GC
// scavenging (the teacher tracks promises that may be collected out from
// under it) to active idle-timeout eviction (pooled records are always
// alive; the pool itself owns the decision to evict them).
type Pool struct {
	cfg   PoolConfig
	newFn func() *Record
	stats *metrics.PoolStats

	mu      sync.Mutex
	idle    []*Record
	ring    []*Record // every record the pool has ever created, for scavenging
	head    int
	total   int
	stopped bool

	stopJanitor context.CancelFunc
	janitorDone chan struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// NewPool constructs a Pool whose records are created by newFn, starting its
// background janitor immediately. Call Close to stop the janitor.
func NewPool(cfg PoolConfig, newFn func() *Record, reg *metrics.Registry, subsystem string) *Pool {
	cfg = cfg.resolve()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:         cfg,
		newFn:       newFn,
		stats:       metrics.NewPoolStats(reg.Registerer(), subsystem),
		stopJanitor: cancel,
		janitorDone: make(chan struct{}),
	}
	for i := 0; i < cfg.MinSize; i++ {
		r := p.allocate()
		p.idle = append(p.idle, r)
	}
	go p.janitor(ctx)
	return p
}

func (p *Pool) allocate() *Record {
	r := p.newFn()
	r.CreatedAt = time.Now()
	r.LastUsed = r.CreatedAt
	p.total++
	p.ring = append(p.ring, r)
	p.stats.Total.Set(float64(p.total))
	return r
}

// Acquire borrows a record from the idle list (a "hit") or allocates a fresh
// one (a "miss") if none are idle and the pool is below MaxSize.
func (p *Pool) Acquire() *Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.idle); n > 0 {
		r := p.idle[n-1]
		p.idle = p.idle[:n-1]
		r.inUse = true
		r.ReuseCnt++
		r.LastUsed = time.Now()
		p.stats.Hits.Inc()
		p.hits.Add(1)
		p.stats.BytesSaved.Add(float64(unsafe.Sizeof(Record{})))
		p.stats.Active.Set(float64(p.activeLocked()))
		p.stats.Pooled.Set(float64(len(p.idle)))
		return r
	}

	p.stats.Misses.Inc()
	p.misses.Add(1)
	r := p.allocate()
	r.inUse = true
	p.stats.Active.Set(float64(p.activeLocked()))
	p.stats.Pooled.Set(float64(len(p.idle)))
	return r
}

func (p *Pool) activeLocked() int { return p.total - len(p.idle) }

// Release returns a record to the pool's idle list, or discards it (and its
// handle) if the pool is already at MaxSize, mirroring spec §4.7's "on
// release returns the record to the pool (or deletes it if the pool is
// full)".
func (p *Pool) Release(r *Record) {
	if r == nil {
		return
	}
	p.mu.Lock()
	r.inUse = false
	r.LastUsed = time.Now()
	full := len(p.idle) >= p.cfg.MaxSize
	if !full {
		p.idle = append(p.idle, r)
	}
	p.stats.Active.Set(float64(p.activeLocked()))
	p.stats.Pooled.Set(float64(len(p.idle)))
	p.mu.Unlock()

	if full {
		r.Handle.Destroy()
		p.mu.Lock()
		p.total--
		p.stats.Total.Set(float64(p.total))
		p.mu.Unlock()
	}
}

// Stats is the §4.7 "Pool metrics exposed" snapshot: total records, active,
// pooled (idle), cache hits and misses, hit ratio.
type Stats struct {
	Total    int
	Active   int
	Pooled   int
	Hits     int64
	Misses   int64
	HitRatio float64
}

// Stats returns a point-in-time snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := p.total
	active := p.activeLocked()
	pooled := len(p.idle)
	p.mu.Unlock()

	hits := p.hits.Load()
	misses := p.misses.Load()
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return Stats{
		Total:    total,
		Active:   active,
		Pooled:   pooled,
		Hits:     hits,
		Misses:   misses,
		HitRatio: ratio,
	}
}

func (p *Pool) janitor(ctx context.Context) {
	defer close(p.janitorDone)
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scavenge()
		}
	}
}

// scavenge evicts idle records that have been unused longer than
// IdleTimeout, down to MinSize, scanning the ring in batches the way the
// teacher's registry.Scavenge walks its ring buffer.
func (p *Pool) scavenge() {
	const batchSize = 64

	p.mu.Lock()
	if len(p.ring) == 0 {
		p.mu.Unlock()
		return
	}
	start := p.head
	end := start + batchSize
	if end > len(p.ring) {
		end = len(p.ring)
	}
	batch := p.ring[start:end]
	p.head = end
	if p.head >= len(p.ring) {
		p.head = 0
	}

	now := time.Now()
	var evicted []*Record
	for _, r := range batch {
		if r.inUse || now.Sub(r.LastUsed) < p.cfg.IdleTimeout {
			continue
		}
		if p.total-len(evicted) <= p.cfg.MinSize {
			break
		}
		for i, idle := range p.idle {
			if idle == r {
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				evicted = append(evicted, r)
				break
			}
		}
	}
	if len(evicted) > 0 {
		p.total -= len(evicted)
		p.stats.Total.Set(float64(p.total))
		p.stats.Pooled.Set(float64(len(p.idle)))
	}
	p.mu.Unlock()

	for _, r := range evicted {
		r.Handle.Destroy()
	}
}

// Close stops the janitor goroutine and destroys every idle record.
func (p *Pool) Close() {
	p.stopJanitor()
	<-p.janitorDone

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.stopped = true
	p.mu.Unlock()

	for _, r := range idle {
		r.Handle.Destroy()
	}
}
