package updater

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "neu"

// Metrics holds the update cycle collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	bytesDownloaded prometheus.Counter
	cleanupFailures prometheus.Counter
	lastSuccess     prometheus.Gauge
	installed       *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Update cycles by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of update cycles.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"outcome"}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloaded_bytes_total",
			Help:      "Artifact bytes downloaded.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cleanup_failures_total",
			Help:      "Temporary artifacts or lock markers that could not be removed.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that installed an update.",
		}),
		installed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "installed_version_info",
			Help:      "Currently installed version, as a label.",
		}, []string{"version"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles,
		m.cycleDuration,
		m.bytesDownloaded,
		m.cleanupFailures,
		m.lastSuccess,
		m.installed,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeCycle(r Result) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(r.Outcome), Reason(r.Err)).Inc()
	m.cycleDuration.WithLabelValues(string(r.Outcome)).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	if r.Outcome == OutcomeDone {
		m.lastSuccess.Set(float64(r.FinishedAt.Unix()))
	}
}

func (m *Metrics) setInstalled(version string) {
	if m == nil || version == "" {
		return
	}
	m.installed.Reset()
	m.installed.WithLabelValues(version).Set(1)
}

func (m *Metrics) addDownloaded(n int64) {
	if m == nil {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

func (m *Metrics) cleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
