// Package metrics exposes source and viewer counters to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"deskmirror/internal/stream"
)

// Config configures the collectors.
type Config struct {
	// Namespace prefixes every metric name (default "deskmirror").
	Namespace string
	// Registry receives the collectors (default prometheus.DefaultRegisterer).
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = r }
}

// Metrics holds the collectors of one process.
type Metrics struct {
	SessionsTotal   prometheus.Counter
	ActiveSessions  prometheus.Gauge
	AuthFailures    *prometheus.CounterVec
	Handshake       prometheus.Histogram
	SessionDuration prometheus.Histogram
	CaptureFailures prometheus.Counter
	CaptureReinits  prometheus.Counter
	SessionErrors   *prometheus.CounterVec

	pump *pumpCollector
}

// New registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{Namespace: "deskmirror", Registry: prometheus.DefaultRegisterer}
	for _, o := range opts {
		o(&cfg)
	}
	f := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	m := &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "sessions_total",
			Help: "Sessions that completed the handshake.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "active_sessions",
			Help: "Sessions currently streaming.",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "auth_failures_total",
			Help: "Rejected connection attempts by reason.",
		}, []string{"reason"}),
		Handshake: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "handshake_duration_seconds",
			Help:    "Time from accept to the end of the handshake.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "session_duration_seconds",
			Help:    "Lifetime of streaming sessions.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		CaptureFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "capture", Name: "failures_total",
			Help: "Capture backend errors that forced a reinit.",
		}),
		CaptureReinits: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "capture", Name: "reinits_total",
			Help: "Capture backend reinitializations.",
		}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "session_errors_total",
			Help: "Sessions ended by a failure, by error kind.",
		}, []string{"kind"}),
		pump: newPumpCollector(ns),
	}
	cfg.Registry.MustRegister(m.pump)
	return m
}

// Track includes st in the pump counters until the returned func is
// called, after which its final values are kept.
func (m *Metrics) Track(st *stream.Stats) (untrack func()) {
	return m.pump.track(st)
}

type pumpCounter struct {
	desc *prometheus.Desc
	get  func(*stream.Stats) int64
}

// pumpCollector reports the counters of finished sessions plus those of
// live ones.
type pumpCollector struct {
	mu       sync.Mutex
	counters []pumpCounter
	done     []float64
	live     map[*stream.Stats]struct{}
}

func newPumpCollector(ns string) *pumpCollector {
	def := func(name, help string, get func(*stream.Stats) int64) pumpCounter {
		return pumpCounter{
			desc: prometheus.NewDesc(prometheus.BuildFQName(ns, "stream", name), help, nil, nil),
			get:  get,
		}
	}
	c := &pumpCollector{
		counters: []pumpCounter{
			def("captures_total", "Frames captured.", func(s *stream.Stats) int64 { return s.Captures.Load() }),
			def("unchanged_total", "Captures identical to the previous frame.", func(s *stream.Stats) int64 { return s.Unchanged.Load() }),
			def("packets_total", "Frame packets sent or received.", func(s *stream.Stats) int64 { return s.Packets.Load() }),
			def("bytes_total", "Frame payload bytes sent or received.", func(s *stream.Stats) int64 { return s.Bytes.Load() }),
			def("throttled_total", "Pauses after a large payload.", func(s *stream.Stats) int64 { return s.Throttled.Load() }),
			def("commands_total", "Input commands relayed or injected.", func(s *stream.Stats) int64 { return s.Commands.Load() }),
			def("suppressed_total", "Key-down repeats dropped.", func(s *stream.Stats) int64 { return s.Suppressed.Load() }),
		},
		live: make(map[*stream.Stats]struct{}),
	}
	c.done = make([]float64, len(c.counters))
	return c
}

func (c *pumpCollector) track(st *stream.Stats) func() {
	c.mu.Lock()
	c.live[st] = struct{}{}
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.live, st)
			for i, pc := range c.counters {
				c.done[i] += float64(pc.get(st))
			}
		})
	}
}

func (c *pumpCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, pc := range c.counters {
		ch <- pc.desc
	}
}

func (c *pumpCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, pc := range c.counters {
		v := c.done[i]
		for st := range c.live {
			v += float64(pc.get(st))
		}
		ch <- prometheus.MustNewConstMetric(pc.desc, prometheus.CounterValue, v)
	}
}
