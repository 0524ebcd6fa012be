package flowloop

import "github.com/flowcoro/flowcoro/rtlog"

// options holds Manager configuration, grounded on the teacher's functional
// options pattern (eventloop/options.go: LoopOption/loopOptionImpl).
type options struct {
	logger       rtlog.Logger
	tickBudget   int
	name         string
}

// Option configures a Manager.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the structured logger used for manager diagnostics.
// Defaults to rtlog.Default().
func WithLogger(l rtlog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = l })
}

// WithTickBudget bounds how many ready items Drive processes in a single
// pass before yielding, to keep timers from starving under a flood of ready
// work. Defaults to 4096; <= 0 means unbounded.
func WithTickBudget(n int) Option {
	return optionFunc(func(o *options) { o.tickBudget = n })
}

// WithName sets a diagnostic name that the Manager attaches, as the "manager"
// field, to its log entries. Defaults to "default". The Manager exports no
// metrics.
func WithName(name string) Option {
	return optionFunc(func(o *options) { o.name = name })
}

func resolveOptions(opts []Option) options {
	cfg := options{
		logger:     rtlog.Default(),
		tickBudget: 4096,
		name:       "default",
	}
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}
	return cfg
}
