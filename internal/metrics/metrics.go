// Package metrics provides Prometheus metrics for the session engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rehearse"

// Metrics holds all Prometheus metrics for one engine process.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	PhaseTransitions *prometheus.CounterVec
	SessionScore     prometheus.Gauge
	SessionsComplete prometheus.Counter

	// Capture metrics
	CaptureDuration prometheus.Histogram
	CaptureErrors   *prometheus.CounterVec

	// Pipeline metrics
	StageLatency      *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	SupersededResults prometheus.Counter

	// Persistence metrics
	SnapshotWrites *prometheus.CounterVec
	ArchiveWrites  *prometheus.CounterVec
}

// New creates all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Session phase transitions by target phase",
		}, []string{"phase"}),
		SessionScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_score",
			Help:      "Mean score of the most recently completed session",
		}),
		SessionsComplete: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_complete_total",
			Help:      "Total number of sessions that reached complete",
		}),

		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Length of recorded answers in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		CaptureErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Capture failures by kind",
		}, []string{"kind"}),

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage", "result"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stage failures",
		}, []string{"stage"}),
		SupersededResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_results_total",
			Help:      "Late pipeline results dropped by the invocation token guard",
		}),

		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Snapshot writes by result",
		}, []string{"result"}),
		ArchiveWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "History archive writes by target and result",
		}, []string{"target", "result"}),
	}
}

// Registry exposes the underlying registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPhase records a session entering phase.
func (m *Metrics) RecordPhase(phase string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(phase).Inc()
}

// RecordSessionComplete records the final session score, if any.
func (m *Metrics) RecordSessionComplete(score *float64) {
	if m == nil {
		return
	}
	m.SessionsComplete.Inc()
	if score != nil {
		m.SessionScore.Set(*score)
	}
}

// RecordCapture records a flushed answer recording.
func (m *Metrics) RecordCapture(d time.Duration) {
	if m == nil {
		return
	}
	m.CaptureDuration.Observe(d.Seconds())
}

// RecordCaptureError records a capture failure.
func (m *Metrics) RecordCaptureError(kind string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(kind).Inc()
}

// RecordStage records one pipeline stage execution.
func (m *Metrics) RecordStage(stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.StageFailures.WithLabelValues(stage).Inc()
	}
	m.StageLatency.WithLabelValues(stage, result).Observe(d.Seconds())
}

// RecordSuperseded records a dropped late result.
func (m *Metrics) RecordSuperseded() {
	if m == nil {
		return
	}
	m.SupersededResults.Inc()
}

// RecordSnapshot records a snapshot write.
func (m *Metrics) RecordSnapshot(err error) {
	if m == nil {
		return
	}
	m.SnapshotWrites.WithLabelValues(resultLabel(err)).Inc()
}

// RecordArchive records an archive write against one target.
func (m *Metrics) RecordArchive(target string, err error) {
	if m == nil {
		return
	}
	m.ArchiveWrites.WithLabelValues(target, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
