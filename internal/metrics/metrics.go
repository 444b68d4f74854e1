package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "station"

// Collector holds every station metric. Each Collector owns its registry so
// tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// Sampling
	SampleCycles   prometheus.Counter
	SampleFailures *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	Current        *prometheus.GaugeVec

	// Persistence
	BucketWrites   *prometheus.CounterVec
	SweepRuns      prometheus.Counter
	SweepDeletions *prometheus.CounterVec
	SweepErrors    prometheus.Counter

	// Dashboard
	Connections *prometheus.CounterVec
	Reconnects  prometheus.Counter

	// Network and clock
	JoinAttempts *prometheus.CounterVec
	ClockOffset  prometheus.Gauge

	// Archive and telemetry
	ArchiveSamples   prometheus.Counter
	ArchiveExports   *prometheus.CounterVec
	TelemetryPublish *prometheus.CounterVec
}

// New creates a Collector on a fresh registry that also carries the Go and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return newCollector(reg)
}

func newCollector(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		registry: reg,

		SampleCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_cycles_total",
			Help:      "Sampling cycles that updated the snapshot.",
		}),
		SampleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Sampling stage failures by stage.",
		}, []string{"stage"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_cycle_duration_seconds",
			Help:      "Time spent in one sampling cycle, storage work included.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Current: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_reading",
			Help:      "Latest reading by measure.",
		}, []string{"measure"}),

		BucketWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bucket_writes_total",
			Help:      "Hourly bucket writes by result.",
		}, []string{"result"}),
		SweepRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_sweeps_total",
			Help:      "Retention sweeps run.",
		}),
		SweepDeletions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Paths removed by the retention sweep by kind.",
		}, []string{"kind"}),
		SweepErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_errors_total",
			Help:      "Paths the retention sweep failed to remove or list.",
		}),

		Connections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_connections_total",
			Help:      "Dashboard connections by outcome.",
		}, []string{"outcome"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_reconnects_total",
			Help:      "Network join and listen cycles started by the dashboard.",
		}),

		JoinAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_join_attempts_total",
			Help:      "Wi-Fi join attempts by result.",
		}, []string{"result"}),
		ClockOffset: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_offset_seconds",
			Help:      "Offset applied to the system clock after the last NTP sync.",
		}),

		ArchiveSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_samples_total",
			Help:      "Samples stored in the archive database.",
		}),
		ArchiveExports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_exports_total",
			Help:      "Aggregate file exports by window and result.",
		}, []string{"window", "result"}),
		TelemetryPublish: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_publish_total",
			Help:      "MQTT publishes by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
