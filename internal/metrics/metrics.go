// Package metrics exposes Prometheus instrumentation for the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the request-level collectors. Collectors register themselves
// with the default registry, which /metrics serves.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New creates and registers the collectors under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, service and status.",
		}, []string{"method", "service", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "service"}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being handled.",
		}),
	}
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(method, service, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, service, status).Inc()
	m.requestDuration.WithLabelValues(method, service).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() { m.inFlight.Inc() }

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() { m.inFlight.Dec() }
