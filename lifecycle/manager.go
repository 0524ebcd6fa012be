package lifecycle

import (
	"sync"
	"time"

	"github.com/flowcoro/flowcoro/metrics"
)

// Manager is the process-wide coroutine lifecycle manager (spec §4.7):
// counters for created/completed/cancelled/failed/active, updated through
// RAII-style Enter/Exit guards at task entry/exit, grounded on the teacher's
// promisifyWg in-flight tracking (eventloop/loop.go) generalized from a bare
// WaitGroup to Prometheus-exported counters plus a cancellation registry (a
// plain map, see GlobalCancelAll) for GlobalCancelAll.
type Manager struct {
	stats *metrics.LifecycleStats

	mu      sync.Mutex
	sources map[int64]*CancellationSource
	nextID  int64
}

// NewManager constructs a Manager whose counters are registered against reg.
func NewManager(reg *metrics.Registry) *Manager {
	return &Manager{
		stats:   metrics.NewLifecycleStats(reg.Registerer()),
		sources: make(map[int64]*CancellationSource),
	}
}

// Guard is the RAII-style entry/exit tracker returned by Enter; call Exit
// exactly once when the coroutine reaches a terminal state.
type Guard struct {
	m         *Manager
	id        int64
	startedAt time.Time
	source    *CancellationSource
}

// Enter registers a new in-flight coroutine, incrementing created/active,
// and returns a Guard plus the CancellationSource the coroutine should honor
// so GlobalCancelAll can reach it.
func (m *Manager) Enter() *Guard {
	m.stats.Created.Inc()
	m.stats.Active.Inc()

	src := NewCancellationSource()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.sources[id] = src
	m.mu.Unlock()

	return &Guard{m: m, id: id, startedAt: time.Now(), source: src}
}

// Token returns the cancellation token the guard's owning coroutine should
// observe.
func (g *Guard) Token() CancellationToken { return g.source.Token() }

// Outcome classifies how a tracked coroutine finished, for Exit's counters.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

// Exit records the coroutine's terminal outcome exactly once: decrements
// active, increments the matching terminal counter, observes latency, and
// forgets the guard's CancellationSource (it can no longer be reached by
// GlobalCancelAll).
func (g *Guard) Exit(outcome Outcome) {
	g.m.stats.Active.Dec()
	g.m.stats.Latency.Observe(time.Since(g.startedAt).Seconds())

	switch outcome {
	case OutcomeCancelled:
		g.m.stats.Cancelled.Inc()
	case OutcomeFailed:
		g.m.stats.Failed.Inc()
	default:
		g.m.stats.Completed.Inc()
	}

	g.m.mu.Lock()
	delete(g.m.sources, g.id)
	g.m.mu.Unlock()
}

// GlobalCancelAll cancels every currently in-flight coroutine's
// CancellationSource, per spec §4.7's "global-cancel-all which iterates
// weakly-held cancellation states and cancels each" (realized here with a
// plain map under a mutex rather than weak references, since Go's GC cannot
// observe Guard liveness the way the teacher's promise registry observes
// promise liveness via `weak.Pointer`; entries are removed explicitly by
// Exit instead).
func (m *Manager) GlobalCancelAll() {
	m.mu.Lock()
	sources := make([]*CancellationSource, 0, len(m.sources))
	for _, s := range m.sources {
		sources = append(sources, s)
	}
	m.mu.Unlock()

	for _, s := range sources {
		s.Cancel()
	}
}
