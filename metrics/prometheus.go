package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider adapts Provider onto real Prometheus collectors,
// grounded in itskum47-FluxForge's prometheus/client_golang usage. Unlike
// BasicProvider it registers every instrument with a caller-supplied
// registerer so TaskScheduler/IOCore metrics show up alongside an
// application's own /metrics endpoint.
type PrometheusProvider struct {
	reg    prometheus.Registerer
	namespace string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	updowns    map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusProvider constructs a Provider backed by reg. Pass
// prometheus.DefaultRegisterer to publish on the default /metrics handler, or
// a prometheus.NewRegistry() for test isolation.
func NewPrometheusProvider(namespace string, reg prometheus.Registerer) *PrometheusProvider {
	return &PrometheusProvider{
		reg:        reg,
		namespace:  namespace,
		counters:   make(map[string]*prometheus.CounterVec),
		updowns:    make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(attrs map[string]string) ([]string, prometheus.Labels) {
	if len(attrs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(attrs))
	labels := make(prometheus.Labels, len(attrs))
	for k, v := range attrs {
		names = append(names, k)
		labels[k] = v
	}
	return names, labels
}

// Counter returns a monotonic counter instrument for the given name (created
// once, registered on first use).
func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	names, labels := labelNames(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      orDefault(cfg.Description, name),
		}, names)
		p.reg.MustRegister(vec)
		p.counters[name] = vec
	}
	return promCounter{c: vec.With(labels)}
}

// UpDownCounter returns an up/down counter instrument for the given name.
func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	names, labels := labelNames(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.updowns[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      orDefault(cfg.Description, name),
		}, names)
		p.reg.MustRegister(vec)
		p.updowns[name] = vec
	}
	return promUpDown{g: vec.With(labels)}
}

// Histogram returns a histogram instrument for the given name.
func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	names, labels := labelNames(cfg.Attributes)

	p.mu.Lock()
	defer p.mu.Unlock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      orDefault(cfg.Description, name),
			Buckets:   prometheus.DefBuckets,
		}, names)
		p.reg.MustRegister(vec)
		p.histograms[name] = vec
	}
	return promHistogram{h: vec.With(labels)}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Add(n int64) { p.c.Add(float64(n)) }

type promUpDown struct{ g prometheus.Gauge }

func (p promUpDown) Add(n int64) { p.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Observer }

func (p promHistogram) Record(v float64) { p.h.Observe(v) }
