package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relaydesk/relay/pkg/config"
)

// ForwardMetrics tracks requests passing through the proxy.
//
// Metrics:
//   - relay_proxy_requests_total: Requests by method and response code
//   - relay_proxy_request_duration_seconds: End-to-end latency histogram
//   - relay_proxy_upstream_errors_total: Requests the upstream failed
type ForwardMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
}

// NewForwardMetrics creates and registers forwarding metrics with the provided registry.
func NewForwardMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ForwardMetrics {
	fm := &ForwardMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of requests handled by the proxy",
			},
			[]string{"method", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "upstream_errors_total",
				Help:      "Total number of requests that failed at the upstream",
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		fm.requestsTotal,
		fm.requestDuration,
		fm.upstreamErrors,
	)

	return fm
}

// RecordRequest records a completed request.
func (fm *ForwardMetrics) RecordRequest(method, code string, duration time.Duration) {
	fm.requestsTotal.WithLabelValues(method, code).Inc()
	fm.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordUpstreamError records an upstream failure.
func (fm *ForwardMetrics) RecordUpstreamError(method string) {
	fm.upstreamErrors.WithLabelValues(method).Inc()
}
