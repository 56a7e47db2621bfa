package monitoring

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/stat"
)

// latencyWindow is how many recent run durations feed the latency summary.
const latencyWindow = 1024

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// tests and embedded users can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Context metrics
	ContextsActive prometheus.Gauge
	ContextsTotal  prometheus.Counter
	Disposals      prometheus.Counter

	// Script metrics
	Runs         *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	ScriptErrors *prometheus.CounterVec
	Callbacks    *prometheus.CounterVec

	// WebSocket metrics
	WSSessions prometheus.Gauge
	WSMessages *prometheus.CounterVec

	snapshot Snapshot
	latency  []float64 // ring of recent run durations in seconds
	next     int
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON stats endpoint.
type Snapshot struct {
	ActiveContexts int64   `json:"active_contexts"`
	TotalContexts  int64   `json:"total_contexts"`
	TotalRuns      int64   `json:"total_runs"`
	FailedRuns     int64   `json:"failed_runs"`
	TotalRunTime   float64 `json:"total_run_seconds"`
	Latency        Latency `json:"run_latency"`
}

// Latency summarizes recent run durations in seconds.
type Latency struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
}

// NewMetrics creates a collector with a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextify_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contextify_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ContextsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextify_contexts_active",
			Help: "Number of execution contexts not yet disposed",
		}),
		ContextsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextify_contexts_total",
			Help: "Total number of execution contexts created",
		}),
		Disposals: factory.NewCounter(prometheus.CounterOpts{
			Name: "contextify_disposals_total",
			Help: "Total number of contexts disposed",
		}),

		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextify_runs_total",
				Help: "Total number of script runs",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contextify_run_duration_seconds",
			Help:    "Script run duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		ScriptErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextify_script_errors_total",
				Help: "Script failures by error kind",
			},
			[]string{"kind"},
		),
		Callbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextify_loop_callbacks_total",
				Help: "Event loop callbacks executed",
			},
			[]string{"status"},
		),

		WSSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contextify_ws_sessions",
			Help: "Number of open REPL sessions",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextify_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction"},
		),
	}
}

// Registry exposes the underlying registry for custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ContextCreated records a new execution context.
func (m *Metrics) ContextCreated() {
	m.ContextsTotal.Inc()
	m.ContextsActive.Inc()

	m.mu.Lock()
	m.snapshot.TotalContexts++
	m.snapshot.ActiveContexts++
	m.mu.Unlock()
}

// ContextDisposed records a disposal.
func (m *Metrics) ContextDisposed() {
	m.Disposals.Inc()
	m.ContextsActive.Dec()

	m.mu.Lock()
	m.snapshot.ActiveContexts--
	m.mu.Unlock()
}

// RunFinished records a completed run. kind is empty on success.
func (m *Metrics) RunFinished(kind string, duration time.Duration) {
	status := "ok"
	if kind != "" {
		status = "error"
		m.ScriptErrors.WithLabelValues(kind).Inc()
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRuns++
	m.snapshot.TotalRunTime += duration.Seconds()
	if kind != "" {
		m.snapshot.FailedRuns++
	}
	if len(m.latency) < latencyWindow {
		m.latency = append(m.latency, duration.Seconds())
	} else {
		m.latency[m.next] = duration.Seconds()
		m.next = (m.next + 1) % latencyWindow
	}
	m.mu.Unlock()
}

// CallbackFinished records one event loop callback.
func (m *Metrics) CallbackFinished(err error) {
	if err != nil {
		m.Callbacks.WithLabelValues("error").Inc()
		return
	}
	m.Callbacks.WithLabelValues("ok").Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction string) {
	m.WSMessages.WithLabelValues(direction).Inc()
}

// IncWSSessions increments open REPL sessions
func (m *Metrics) IncWSSessions() {
	m.WSSessions.Inc()
}

// DecWSSessions decrements open REPL sessions
func (m *Metrics) DecWSSessions() {
	m.WSSessions.Dec()
}

// Snapshot returns a copy of the running totals with a summary of the
// most recent run durations.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	samples := append([]float64(nil), m.latency...)
	m.mu.RUnlock()

	snap.Latency = summarize(samples)
	return snap
}

func summarize(samples []float64) Latency {
	if len(samples) == 0 {
		return Latency{}
	}
	sort.Float64s(samples)
	l := Latency{
		Samples: len(samples),
		P50:     stat.Quantile(0.50, stat.Empirical, samples, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, samples, nil),
		P99:     stat.Quantile(0.99, stat.Empirical, samples, nil),
	}
	if len(samples) > 1 {
		l.Mean, l.StdDev = stat.MeanStdDev(samples, nil)
	} else {
		l.Mean = samples[0]
	}
	return l
}
