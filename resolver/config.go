package resolver

import (
	"net"

	"golang.org/x/time/rate"

	"github.com/ygrebnov/asyncio/metrics"
)

// Config holds Resolver configuration.
type Config struct {
	// Name identifies the resolver in logs and metrics. Default: "resolver".
	Name string

	// MaxConcurrent bounds how many blocking net.Resolver.LookupIPAddr calls may
	// run at once, via a weighted semaphore. Zero (default) picks 64: net's
	// own resolver already multiplexes onto a handful of OS threads, so this
	// mainly exists to bound worst-case goroutine fan-out under a lookup
	// storm, not to work around a real kernel limit.
	MaxConcurrent int64

	// RateLimiter paces how often a new lookup may start, independent of
	// MaxConcurrent's fan-out bound — protects a misbehaving upstream (or a
	// caller retrying a failing name in a tight loop) from hammering the
	// configured DNS server. Default: 50 lookups/sec, burst 20. A nil limiter
	// disables pacing entirely.
	RateLimiter *rate.Limiter

	// Resolver is the underlying blocking resolver. Default: net.DefaultResolver.
	Resolver *net.Resolver

	// MetricsProvider receives resolver instrumentation (lookups issued,
	// in-flight count, lookup latency). Default: metrics.NoopProvider.
	MetricsProvider metrics.Provider
}

// defaultConfig centralizes default values for Config. Applied by both New
// (when cfg is nil) and NewOptions (options builder base).
func defaultConfig() Config {
	return Config{
		Name:            "resolver",
		MaxConcurrent:   64,
		RateLimiter:     rate.NewLimiter(rate.Limit(50), 20),
		Resolver:        net.DefaultResolver,
		MetricsProvider: metrics.Noop,
	}
}

// validateConfig performs lightweight invariant checks.
func validateConfig(cfg *Config) error {
	if cfg.Name == "" {
		cfg.Name = "resolver"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 64
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
	if cfg.MetricsProvider == nil {
		cfg.MetricsProvider = metrics.Noop
	}
	return nil
}
