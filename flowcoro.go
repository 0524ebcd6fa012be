// Package flowcoro is the top-level composition root: a thin façade over
// the explicit constructors in flowloop, workerpool, lifecycle and metrics,
// providing the process-wide "default runtime" convenience described in
// specification §6 ("Runtime configuration") and §9's re-architecture
// guidance to prefer explicit construction with a singleton façade layered
// on top, rather than baking global state into the components themselves.
//
// Grounded on the teacher's eventloop.New(opts ...LoopOption) constructor
// shape (eventloop/loop.go), generalized from "one Loop" to "one Runtime
// bundling a Manager, a worker pool, a lifecycle Manager and a metrics
// Registry" since FlowCoro-Go's spec splits those concerns into separate
// packages that the teacher's Loop kept monolithic.
package flowcoro

import (
	"context"
	"sync"

	"github.com/flowcoro/flowcoro/flowloop"
	"github.com/flowcoro/flowcoro/lifecycle"
	"github.com/flowcoro/flowcoro/metrics"
	"github.com/flowcoro/flowcoro/workerpool"
)

// Runtime bundles the components a typical FlowCoro-Go process needs: a
// coroutine manager/driver, a CPU-bound worker pool, a lifecycle manager for
// process-wide cancellation/bookkeeping, and the metrics registry they all
// publish through.
type Runtime struct {
	Manager   *flowloop.Manager
	Workers   *workerpool.Pool
	Lifecycle *lifecycle.Manager
	Metrics   *metrics.Registry

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// Config configures Configure. The zero value is valid and resolves to the
// same defaults each component's own New picks.
type Config struct {
	ManagerOptions []flowloop.Option
	WorkerCount    int
}

// Configure constructs a new Runtime and starts its manager driving on a
// background goroutine. Callers own the returned Runtime's lifetime and must
// call Shutdown to release it; Configure never mutates process-wide state
// itself (that is reserved for SetDefault).
func Configure(cfg Config) *Runtime {
	reg := metrics.NewRegistry()
	mgr := flowloop.New(cfg.ManagerOptions...)
	workers := workerpool.NewPool(workerpool.Config{
		WorkerCount: cfg.WorkerCount,
		Metrics:     reg,
	})
	lc := lifecycle.NewManager(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()

	return &Runtime{
		Manager:   mgr,
		Workers:   workers,
		Lifecycle: lc,
		Metrics:   reg,
		runCancel: cancel,
		runDone:   done,
	}
}

// Shutdown stops the manager's driving goroutine and closes the worker
// pool, honoring ctx as a shared soft deadline for both: a worker or the
// manager still running past the deadline is left detached rather than
// blocking the caller (spec §5 Destruction Safety).
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.runCancel()
	workersErr := rt.Workers.CloseContext(ctx)
	select {
	case <-rt.runDone:
		return workersErr
	case <-ctx.Done():
		if workersErr != nil {
			return workersErr
		}
		return ctx.Err()
	}
}

var (
	defaultMu   sync.Mutex
	defaultOnce sync.Once
	defaultRt   *Runtime
)

// Default returns the process-wide Runtime, constructing it on first use
// with zero-value Config. Most programs call this once at startup and pass
// the result's Manager/Workers/Lifecycle/Metrics down to whatever needs
// them, rather than calling Default repeatedly.
func Default() *Runtime {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultRt == nil {
			defaultRt = Configure(Config{})
		}
	})
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRt
}

// SetDefault installs rt as the process-wide Runtime returned by Default,
// for tests and programs that need non-default configuration at startup.
// It must be called before any call to Default that would otherwise trigger
// lazy construction.
func SetDefault(rt *Runtime) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce.Do(func() {})
	defaultRt = rt
}
