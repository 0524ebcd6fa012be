// Package metrics wires FlowCoro-Go's pool/queue/manager statistics into
// Prometheus, grounded on ChuLiYu-raft-recovery's internal/metrics
// (Collector: counters/gauges/histogram registered against a Registerer,
// RED/USE-style naming).
//
// Unlike the teacher, which registers its Collector against the global
// prometheus.DefaultRegisterer via MustRegister, every FlowCoro-Go component
// that wants metrics is handed (or creates) its own *prometheus.Registry:
// constructing more than one flowloop.Manager or workerpool.Pool in the same
// process (as tests routinely do) would otherwise panic on duplicate metric
// registration against the shared default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a thin wrapper around a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry constructs an empty, private registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Registerer exposes the underlying prometheus.Registerer for component
// collectors to register against.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying prometheus.Gatherer for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns an http.Handler serving this registry's metrics in
// Prometheus exposition format, for mounting at e.g. "/metrics".
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// PoolStats mirrors spec §4.7's "Pool metrics exposed" for the coroutine
// lifecycle pool: total records, active, pooled (idle), cache hits/misses,
// hit ratio, bytes saved.
type PoolStats struct {
	Total      prometheus.Gauge
	Active     prometheus.Gauge
	Pooled     prometheus.Gauge
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	BytesSaved prometheus.Counter
}

// NewPoolStats creates and registers the gauges/counters for a named pooled
// subsystem (e.g. "coroutine", "worker") against reg.
func NewPoolStats(reg prometheus.Registerer, subsystem string) *PoolStats {
	s := &PoolStats{
		Total: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "records_total",
			Help:      "Total pooled records currently allocated.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "records_active",
			Help:      "Records currently checked out (in use).",
		}),
		Pooled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "records_idle",
			Help:      "Records currently idle in the pool.",
		}),
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Pool acquisitions served from the idle list.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Pool acquisitions that allocated a fresh record.",
		}),
		BytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "bytes_saved_total",
			Help:      "Estimated bytes saved by reusing pooled records instead of allocating.",
		}),
	}
	reg.MustRegister(s.Total, s.Active, s.Pooled, s.Hits, s.Misses, s.BytesSaved)
	return s
}

// LifecycleStats mirrors spec §4.7's process-wide counters:
// created/completed/cancelled/failed/active.
type LifecycleStats struct {
	Created   prometheus.Counter
	Completed prometheus.Counter
	Cancelled prometheus.Counter
	Failed    prometheus.Counter
	Active    prometheus.Gauge
	Latency   prometheus.Histogram
}

// NewLifecycleStats creates and registers the process-wide coroutine
// lifecycle counters against reg.
func NewLifecycleStats(reg prometheus.Registerer) *LifecycleStats {
	s := &LifecycleStats{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "created_total",
			Help: "Coroutines created.",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "completed_total",
			Help: "Coroutines that completed normally.",
		}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "cancelled_total",
			Help: "Coroutines that completed via cancellation.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "failed_total",
			Help: "Coroutines that completed via a captured panic/error.",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "active",
			Help: "Coroutines currently running or suspended.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowcoro", Subsystem: "lifecycle", Name: "task_latency_seconds",
			Help:    "Wall-clock time from task creation to completion.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(s.Created, s.Completed, s.Cancelled, s.Failed, s.Active, s.Latency)
	return s
}

// QueueStats mirrors the lock-free queue/worker-pool depth gauges from §2's
// component table.
type QueueStats struct {
	Depth prometheus.Gauge
}

// NewQueueStats creates and registers a queue-depth gauge for a named queue.
func NewQueueStats(reg prometheus.Registerer, subsystem string) *QueueStats {
	s := &QueueStats{
		Depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowcoro",
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current number of items waiting in the queue.",
		}),
	}
	reg.MustRegister(s.Depth)
	return s
}
