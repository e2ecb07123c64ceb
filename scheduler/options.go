package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ygrebnov/asyncio/metrics"
)

// Option configures a Scheduler. Use NewOptions(opts...) to construct one.
type Option func(*configOptions)

type configOptions struct {
	cfg Config
}

// WithName sets the scheduler's diagnostic name.
func WithName(name string) Option {
	return func(co *configOptions) { co.cfg.Name = name }
}

// WithThreadCount sets the number of worker goroutines.
func WithThreadCount(n uint) Option {
	return func(co *configOptions) { co.cfg.ThreadCount = n }
}

// WithSubQueueSize sets Config.SubQueueSize, which the Scheduler does not read.
func WithSubQueueSize(n uint) Option {
	return func(co *configOptions) { co.cfg.SubQueueSize = n }
}

// WithMetricsProvider attaches a metrics.Provider for instrumentation.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(co *configOptions) { co.cfg.MetricsProvider = p }
}

// WithLogger attaches a zerolog.Logger for debug tracing of dispatcher ticks.
// Never used for control flow.
func WithLogger(l zerolog.Logger) Option {
	return func(co *configOptions) { co.cfg.Logger = l }
}

// NewOptions creates a new Scheduler using functional options.
// It constructs a Config internally and delegates to New.
func NewOptions(opts ...Option) (*Scheduler, error) {
	co := configOptions{cfg: defaultConfig()}
	for _, opt := range opts {
		if opt == nil {
			panic("nil scheduler option")
		}
		opt(&co)
	}

	if err := validateConfig(&co.cfg); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	return New(&co.cfg)
}
