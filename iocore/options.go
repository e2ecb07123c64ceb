package iocore

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/internal/objpool"
	"github.com/ygrebnov/asyncio/metrics"
)

// Option configures a Core. Use NewOptions(opts...) to construct one.
type Option func(*configOptions)

type configOptions struct {
	cfg Config
}

// WithName sets the core's diagnostic name.
func WithName(name string) Option {
	return func(co *configOptions) { co.cfg.Name = name }
}

// WithThreadCount sets the number of I/O worker goroutines.
func WithThreadCount(n uint) Option {
	return func(co *configOptions) { co.cfg.ThreadCount = n }
}

// WithSubQueueSize sets Config.SubQueueSize, which the Core does not read.
func WithSubQueueSize(n uint) Option {
	return func(co *configOptions) { co.cfg.SubQueueSize = n }
}

// WithBackend overrides the kernel event source factory, e.g. to force a
// specific backend in tests.
func WithBackend(f backend.Factory) Option {
	return func(co *configOptions) { co.cfg.Backend = f }
}

// WithMetricsProvider attaches a metrics.Provider for instrumentation.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(co *configOptions) { co.cfg.MetricsProvider = p }
}

// WithEventPool overrides the IOEvent recycling strategy, e.g.
// objpool.NewFixed for a deployment with a known connection ceiling.
func WithEventPool(p objpool.Pool) Option {
	return func(co *configOptions) { co.cfg.EventPool = p }
}

// WithLogger attaches a zerolog.Logger for debug tracing of dispatcher ticks.
// Never used for control flow.
func WithLogger(l zerolog.Logger) Option {
	return func(co *configOptions) { co.cfg.Logger = l }
}

// NewOptions creates a new Core using functional options.
func NewOptions(opts ...Option) (*Core, error) {
	co := configOptions{cfg: defaultConfig()}
	for _, opt := range opts {
		if opt == nil {
			panic("nil iocore option")
		}
		opt(&co)
	}

	if err := validateConfig(&co.cfg); err != nil {
		return nil, fmt.Errorf("invalid iocore config: %w", err)
	}

	return New(&co.cfg)
}
