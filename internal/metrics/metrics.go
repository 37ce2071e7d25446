package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported on /metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probeDuration *prometheus.HistogramVec
	probeTotal    *prometheus.CounterVec
	writeRetries  prometheus.Counter
	dropped       *prometheus.CounterVec
	maintenance   *prometheus.CounterVec
	purged        *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edgeprobe_probe_duration_seconds",
			Help:    "Latency of successful RPC probes.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "test_type", "method"}),
		probeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprobe_probe_total",
			Help: "Probes executed, by outcome.",
		}, []string{"provider", "test_type", "method", "outcome"}),
		writeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgeprobe_store_write_retries_total",
			Help: "Store writes retried because the database was busy.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprobe_store_dropped_total",
			Help: "Probe results that could not be persisted.",
		}, []string{"test_type"}),
		maintenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprobe_maintenance_runs_total",
			Help: "Maintenance cycles, by outcome.",
		}, []string{"outcome"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgeprobe_rows_purged_total",
			Help: "Rows removed by retention, by table.",
		}, []string{"table"}),
	}
	m.registry.MustRegister(
		m.probeDuration, m.probeTotal, m.writeRetries,
		m.dropped, m.maintenance, m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveProbe(provider, testType, method string, success bool, latencyMS float64) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
		m.probeDuration.WithLabelValues(provider, testType, method).Observe(latencyMS / 1000)
	}
	m.probeTotal.WithLabelValues(provider, testType, method, outcome).Inc()
}

func (m *Metrics) WriteRetry() {
	if m == nil {
		return
	}
	m.writeRetries.Inc()
}

func (m *Metrics) Dropped(testType string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(testType).Inc()
}

func (m *Metrics) MaintenanceRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.maintenance.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Purged(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.WithLabelValues(table).Add(float64(n))
}
