package iocore

import (
	"github.com/rs/zerolog"

	"github.com/ygrebnov/asyncio/iocore/backend"
	"github.com/ygrebnov/asyncio/internal/objpool"
	"github.com/ygrebnov/asyncio/metrics"
)

// Config holds Core configuration.
type Config struct {
	// Name identifies the core in logs and metrics. Default: "iocore".
	Name string

	// ThreadCount sets the number of I/O worker goroutines draining the
	// ready queue. Zero (default) picks runtime.GOMAXPROCS(0).
	ThreadCount uint

	// SubQueueSize is stored in Config but not read by the Core, same as
	// scheduler.Config.SubQueueSize: the front queue is drained whole on
	// every dispatcher pass. Default: 16.
	SubQueueSize uint

	// Backend constructs the kernel event source this Core polls. Default:
	// the platform's native backend (epoll on linux, kqueue on darwin/bsd,
	// iocp on windows). Use WithIORingBackend on linux to opt into io_uring
	// instead of epoll.
	Backend backend.Factory

	// MetricsProvider receives core instrumentation (sockets attached,
	// events dispatched, accept retries). Default: metrics.NoopProvider.
	MetricsProvider metrics.Provider

	// EventPool supplies IOEvent objects. Default: an unbounded
	// sync.Pool-backed objpool.Pool.
	EventPool objpool.Pool

	// Logger receives debug-level tracing of dispatcher ticks only — never
	// used for control flow. Default: zerolog.Nop().
	Logger zerolog.Logger
}

func defaultConfig() Config {
	return Config{
		Name:            "iocore",
		SubQueueSize:    16,
		Backend:         defaultBackendFactory,
		MetricsProvider: metrics.Noop,
		EventPool:       objpool.NewDynamic(newIOEvent),
		Logger:          zerolog.Nop(),
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Name == "" {
		cfg.Name = "iocore"
	}
	if cfg.Backend == nil {
		cfg.Backend = defaultBackendFactory
	}
	if cfg.MetricsProvider == nil {
		cfg.MetricsProvider = metrics.Noop
	}
	if cfg.EventPool == nil {
		cfg.EventPool = objpool.NewDynamic(newIOEvent)
	}
	return nil
}
