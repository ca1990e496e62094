package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "file_renamer"

// Metrics groups the prometheus collectors of the bot.
// They are registered on the given registry so tests can use a private one.
type Metrics struct {
	registry *prometheus.Registry

	TransfersTotal   *prometheus.CounterVec
	TransferBytes    *prometheus.CounterVec
	TransferDuration *prometheus.HistogramVec
	SlotsInUse       *prometheus.GaugeVec
	ProgressEdits    *prometheus.CounterVec
	FloodWaits       prometheus.Counter

	RunsTotal      *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	ActiveSessions *prometheus.GaugeVec
	SinkFailures   *prometheus.CounterVec

	MemoryUsage prometheus.Gauge
	CPUUsage    prometheus.Gauge
	Goroutines  prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transfers_total",
			Help: "Finished transfers by direction and outcome.",
		}, []string{"direction", "outcome"}),
		TransferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transfer_bytes_total",
			Help: "Bytes moved by direction.",
		}, []string{"direction"}),
		TransferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "transfer_duration_seconds",
			Help:    "Duration of transfers.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"direction"}),
		SlotsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "transfer_slots_in_use",
			Help: "Slots currently held per pool.",
		}, []string{"pool"}),
		ProgressEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "progress_reports_total",
			Help: "Progress reports by decision.",
		}, []string{"decision"}),
		FloodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flood_waits_total",
			Help: "Retry-after signals received while editing progress messages.",
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_runs_total",
			Help: "Pipeline runs by result.",
		}, []string{"result"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "admission_rejections_total",
			Help: "Files rejected before processing.",
		}, []string{"reason"}),
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions",
			Help: "Sessions per stage.",
		}, []string{"stage"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "activity_sink_failures_total",
			Help: "Activity records a sink failed to consume.",
		}, []string{"sink"}),
		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "memory_rss_bytes",
			Help: "Resident memory of the process.",
		}),
		CPUUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cpu_percent",
			Help: "CPU usage of the process.",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "goroutines",
			Help: "Number of goroutines.",
		}),
	}
	registry.MustRegister(
		m.TransfersTotal, m.TransferBytes, m.TransferDuration, m.SlotsInUse,
		m.ProgressEdits, m.FloodWaits, m.RunsTotal, m.Rejections,
		m.ActiveSessions, m.SinkFailures, m.MemoryUsage, m.CPUUsage, m.Goroutines,
	)
	return m
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
