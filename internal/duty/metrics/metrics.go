package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the duty workflow.
type Metrics struct {
	Transitions               *prometheus.CounterVec
	TransitionDuration        *prometheus.HistogramVec
	EvidenceCleanupFailures   prometheus.Counter
	HistoryChainVerifyFailure prometheus.Counter
}

// New creates and registers the duty metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyflow_duty_transitions_total",
			Help: "Total number of duty transitions by kind and outcome",
		}, []string{"transition", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dutyflow_duty_transition_duration_seconds",
			Help:    "Duration of duty transitions including evidence upload",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"transition"}),
		EvidenceCleanupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_evidence_cleanup_failures_total",
			Help: "Uploaded evidence that could not be removed after a failed completion",
		}),
		HistoryChainVerifyFailure: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_history_chain_invalid_total",
			Help: "History reads whose hash chain failed verification",
		}),
	}
}

// ObserveTransition records one transition attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(transition, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(transition, outcome).Inc()
	m.TransitionDuration.WithLabelValues(transition).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementEvidenceCleanupFailures() {
	m.EvidenceCleanupFailures.Inc()
}

func (m *Metrics) IncrementChainInvalid() {
	m.HistoryChainVerifyFailure.Inc()
}
