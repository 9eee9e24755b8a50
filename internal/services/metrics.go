package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Session stream metrics
	SessionStreams prometheus.Gauge
	SessionEvents  *prometheus.CounterVec

	// Generation metrics
	GenerationRequests *prometheus.CounterVec
	GenerationLatency  prometheus.Histogram
	GenerationErrors   *prometheus.CounterVec

	// Detached history/usage writes that failed
	SideEffectFailures *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics. inFlight reports the number
// of submissions currently waiting on the model.
func InitMetrics(inFlight func() int) *Metrics {
	metrics := &Metrics{
		SessionStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "studyforge_session_streams_active",
			Help: "Number of open session WebSocket streams",
		}),

		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studyforge_session_events_total",
			Help: "Session events published, by type",
		}, []string{"type"}),

		GenerationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studyforge_generation_requests_total",
			Help: "Total number of generation requests, by feature",
		}, []string{"feature"}),

		GenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "studyforge_generation_duration_seconds",
			Help:    "Generation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),

		GenerationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studyforge_generation_errors_total",
			Help: "Total number of failed generations by kind",
		}, []string{"kind"}), // remote, malformed, schema

		SideEffectFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "studyforge_side_effect_failures_total",
			Help: "Failed history appends and usage increments",
		}, []string{"task"}),
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "studyforge_submissions_in_flight",
			Help: "Submissions currently waiting on the model",
		},
		func() float64 {
			if inFlight != nil {
				return float64(inFlight())
			}
			return 0
		},
	))

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance. It is nil until InitMetrics
// runs; every Record method tolerates a nil receiver.
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordStreamOpen records a new session stream
func (m *Metrics) RecordStreamOpen() {
	if m == nil {
		return
	}
	m.SessionStreams.Inc()
}

// RecordStreamClose records a closed session stream
func (m *Metrics) RecordStreamClose() {
	if m == nil {
		return
	}
	m.SessionStreams.Dec()
}

// RecordSessionEvent records a published session event
func (m *Metrics) RecordSessionEvent(eventType string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(eventType).Inc()
}

// RecordGeneration records a generation request and its latency
func (m *Metrics) RecordGeneration(featureID string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(featureID).Inc()
	m.GenerationLatency.Observe(seconds)
}

// RecordGenerationError records a failed generation
func (m *Metrics) RecordGenerationError(kind string) {
	if m == nil {
		return
	}
	m.GenerationErrors.WithLabelValues(kind).Inc()
}

// RecordSideEffectFailure records a failed detached write
func (m *Metrics) RecordSideEffectFailure(task string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(task).Inc()
}
