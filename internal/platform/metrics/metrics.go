package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics shared by every handler.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	AuthFailures    prometheus.Counter
}

// New creates and registers the HTTP metrics on reg.
// Pass prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dutyflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern and status class",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		AuthFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dutyflow_auth_failures_total",
			Help: "Total number of rejected bearer tokens",
		}),
	}
}

// ObserveRequest records the duration of one request.
func (m *Metrics) ObserveRequest(method, route, status string, start time.Time) {
	m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}

// IncrementAuthFailures records a rejected credential.
func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}
