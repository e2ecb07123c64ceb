// Package resolver runs blocking DNS lookups off the dispatcher goroutines
// that TaskScheduler and IOCore both require to stay non-blocking (spec.md
// §1 names DNS resolution as an external collaborator of connection setup,
// not something the core itself performs). It bounds concurrent lookups with
// a weighted semaphore so a burst of connection attempts can't fan out one
// goroutine per hostname.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ygrebnov/asyncio/metrics"
)

// Resolver bounds concurrent calls into a blocking net.Resolver.
type Resolver struct {
	cfg Config
	sem *semaphore.Weighted

	lookupsIssued metrics.Counter
	lookupsFailed metrics.Counter
	inFlight      metrics.UpDownCounter
	latency       metrics.Histogram
}

// New creates a new Resolver.
//
// Deprecated: this Config-based constructor will be deprecated in a future
// release. Prefer NewOptions(opts...), the functional-options constructor.
func New(cfg *Config) (*Resolver, error) {
	if cfg == nil {
		c := defaultConfig()
		cfg = &c
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	mp := cfg.MetricsProvider
	r := &Resolver{
		cfg:           *cfg,
		sem:           semaphore.NewWeighted(cfg.MaxConcurrent),
		lookupsIssued: mp.Counter(cfg.Name+".lookups.issued", metrics.WithDescription("DNS lookups started")),
		lookupsFailed: mp.Counter(cfg.Name+".lookups.failed", metrics.WithDescription("DNS lookups that returned an error")),
		inFlight:      mp.UpDownCounter(cfg.Name+".lookups.inflight", metrics.WithDescription("DNS lookups currently running")),
		latency:       mp.Histogram(cfg.Name+".lookups.latency", metrics.WithUnit("seconds"), metrics.WithDescription("blocking lookup duration")),
	}
	return r, nil
}

// Lookup resolves host to its addresses, blocking the calling goroutine (not
// a scheduler or core worker) until the rate limiter admits it, the
// semaphore admits it, and the underlying net.Resolver returns, or ctx is
// done.
func (r *Resolver) Lookup(ctx context.Context, host string) ([]net.IPAddr, error) {
	if r.cfg.RateLimiter != nil {
		if err := r.cfg.RateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("resolver: rate limit: %w", err)
		}
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("resolver: acquire: %w", err)
	}
	defer r.sem.Release(1)

	r.lookupsIssued.Add(1)
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	start := time.Now()
	addrs, err := r.cfg.Resolver.LookupIPAddr(ctx, host)
	r.latency.Record(time.Since(start).Seconds())
	if err != nil {
		r.lookupsFailed.Add(1)
		return nil, fmt.Errorf("resolver: lookup %q: %w", host, err)
	}
	return addrs, nil
}

// LookupAsync starts a lookup in a new goroutine and returns immediately with
// a Request the caller can stash (e.g. on an IOTask, per spec.md §3.2's
// expansion) and poll or wait on later, once a socket exists to attach to.
func (r *Resolver) LookupAsync(ctx context.Context, host string) *Request {
	req := &Request{host: host, done: make(chan struct{})}
	go func() {
		defer close(req.done)
		addrs, err := r.Lookup(ctx, host)
		req.mu.Lock()
		req.addrs, req.err = addrs, err
		req.mu.Unlock()
	}()
	return req
}

// Request is a pending or completed async lookup.
type Request struct {
	host string

	done chan struct{}

	mu    sync.Mutex
	addrs []net.IPAddr
	err   error
}

// Host returns the hostname this request resolves.
func (r *Request) Host() string { return r.host }

// Done returns a channel closed once the lookup completes.
func (r *Request) Done() <-chan struct{} { return r.done }

// Result returns the resolved addresses and error, if the lookup has
// completed; ok is false while it is still in flight.
func (r *Request) Result() (addrs []net.IPAddr, err error, ok bool) {
	select {
	case <-r.done:
	default:
		return nil, nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addrs, r.err, true
}

// Wait blocks until the lookup completes or ctx is done.
func (r *Request) Wait(ctx context.Context) ([]net.IPAddr, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.addrs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
