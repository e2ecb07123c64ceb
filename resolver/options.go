package resolver

import (
	"fmt"
	"net"

	"golang.org/x/time/rate"

	"github.com/ygrebnov/asyncio/metrics"
)

// Option configures a Resolver. Use NewOptions(opts...) to construct one.
type Option func(*configOptions)

type configOptions struct {
	cfg Config
}

// WithName sets the resolver's diagnostic name.
func WithName(name string) Option {
	return func(co *configOptions) { co.cfg.Name = name }
}

// WithMaxConcurrent bounds concurrent blocking lookups.
func WithMaxConcurrent(n int64) Option {
	return func(co *configOptions) { co.cfg.MaxConcurrent = n }
}

// WithResolver swaps in a non-default *net.Resolver (e.g. one pointed at a
// specific DNS server for tests).
func WithResolver(r *net.Resolver) Option {
	return func(co *configOptions) { co.cfg.Resolver = r }
}

// WithRateLimiter overrides the lookup-start pacing limiter. Pass nil to
// disable pacing.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(co *configOptions) { co.cfg.RateLimiter = l }
}

// WithMetricsProvider attaches a metrics.Provider for instrumentation.
func WithMetricsProvider(p metrics.Provider) Option {
	return func(co *configOptions) { co.cfg.MetricsProvider = p }
}

// NewOptions creates a new Resolver using functional options. It constructs a
// Config internally and delegates to New.
func NewOptions(opts ...Option) (*Resolver, error) {
	co := configOptions{cfg: defaultConfig()}
	for _, opt := range opts {
		if opt == nil {
			panic("nil resolver option")
		}
		opt(&co)
	}

	if err := validateConfig(&co.cfg); err != nil {
		return nil, fmt.Errorf("invalid resolver config: %w", err)
	}

	return New(&co.cfg)
}
