package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for notification enqueueing and relaying.
type Metrics struct {
	Enqueued       *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	EnqueueFailed  *prometheus.CounterVec
	Published      prometheus.Counter
	PublishFailed  prometheus.Counter
	BreakerSkipped prometheus.Counter
	BreakerState   prometheus.Gauge
}

// New creates and registers the notification metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyflow_notifications_enqueued_total",
			Help: "Total number of notifications written to the outbox",
		}, []string{"type"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyflow_notifications_skipped_total",
			Help: "Total number of notifications not sent because the recipient has no push token",
		}, []string{"type"}),
		EnqueueFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dutyflow_notifications_enqueue_failures_total",
			Help: "Total number of notifications lost before reaching the outbox",
		}, []string{"type"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_notifications_published_total",
			Help: "Total number of notifications handed to the broker",
		}),
		PublishFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_notifications_publish_failures_total",
			Help: "Total number of claimed notifications the broker refused",
		}),
		BreakerSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_notifications_relay_paused_total",
			Help: "Total number of relay ticks skipped while the circuit breaker was open",
		}),
		BreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "dutyflow_notifications_relay_breaker_state",
			Help: "Current relay circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncEnqueued(typ string) {
	m.Enqueued.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncSkipped(typ string) {
	m.Skipped.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncEnqueueFailed(typ string) {
	m.EnqueueFailed.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncPublished() {
	m.Published.Inc()
}

func (m *Metrics) IncPublishFailed() {
	m.PublishFailed.Inc()
}

func (m *Metrics) IncBreakerSkipped() {
	m.BreakerSkipped.Inc()
}

// SetBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
