package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/ygrebnov/asyncio/metrics"
)

// Config holds Scheduler configuration.
type Config struct {
	// Name identifies the scheduler in logs and metrics. Default: "scheduler".
	Name string

	// ThreadCount sets the number of worker goroutines draining the ready
	// queue. Zero (default) picks runtime.GOMAXPROCS(0).
	ThreadCount uint

	// SubQueueSize is stored in Config but not read by the Scheduler: the
	// dispatcher drains the whole front queue on every pass, with no batch
	// bound. Default: 16.
	SubQueueSize uint

	// MetricsProvider receives scheduler instrumentation (tasks posted,
	// dispatched, expired, queue depth). Default: metrics.NoopProvider.
	MetricsProvider metrics.Provider

	// Logger receives debug-level tracing of dispatcher ticks only — never
	// used for control flow, per the "core never logs-and-swallows" rule.
	// Default: zerolog.Nop().
	Logger zerolog.Logger
}

// defaultConfig centralizes default values for Config. Applied by both New
// (when cfg is nil) and NewOptions (options builder base).
func defaultConfig() Config {
	return Config{
		Name:            "scheduler",
		ThreadCount:     0, // GOMAXPROCS(0)
		SubQueueSize:    16,
		MetricsProvider: metrics.Noop,
		Logger:          zerolog.Nop(),
	}
}

// validateConfig performs lightweight invariant checks.
func validateConfig(cfg *Config) error {
	if cfg.Name == "" {
		cfg.Name = "scheduler"
	}
	if cfg.MetricsProvider == nil {
		cfg.MetricsProvider = metrics.Noop
	}
	// cfg.Logger's zero value is already a valid no-op zerolog.Logger, so
	// there is nothing to default here for callers who construct Config{}
	// directly instead of going through defaultConfig/NewOptions.
	return nil
}
