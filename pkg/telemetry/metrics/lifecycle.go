package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/proxy/types"
)

// LifecycleMetrics tracks start, stop and reconfigure operations.
//
// Metrics:
//   - relay_lifecycle_transitions_total: Operations by name and result
//   - relay_lifecycle_transition_duration_seconds: Operation latency
//   - relay_proxy_up: 1 while a listener is open
//   - relay_proxy_route_info: Constant 1 labelled with the held route
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	up          prometheus.Gauge
	route       *prometheus.GaugeVec
}

// NewLifecycleMetrics creates and registers lifecycle metrics with the provided registry.
func NewLifecycleMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LifecycleMetrics {
	lm := &LifecycleMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Total number of lifecycle operations by result",
			},
			[]string{"operation", "result"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "lifecycle",
				Name:      "transition_duration_seconds",
				Help:      "Duration of lifecycle operations in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"operation"},
		),

		up: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "up",
				Help:      "Whether the proxy listener is open (1=running, 0=stopped)",
			},
		),

		route: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "route_info",
				Help:      "Route held by the lifecycle manager",
			},
			[]string{"target", "listen_port"},
		),
	}

	registry.MustRegister(
		lm.transitions,
		lm.duration,
		lm.up,
		lm.route,
	)

	return lm
}

// RecordTransition records one lifecycle operation.
func (lm *LifecycleMetrics) RecordTransition(operation string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	lm.transitions.WithLabelValues(operation, result).Inc()
	lm.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveState sets the up gauge and replaces the route label set.
func (lm *LifecycleMetrics) ObserveState(running bool, cfg *types.ProxyConfig) {
	if running {
		lm.up.Set(1)
	} else {
		lm.up.Set(0)
	}

	lm.route.Reset()
	if cfg != nil {
		lm.route.WithLabelValues(cfg.TargetURL(), strconv.Itoa(cfg.ProxyPort)).Set(1)
	}
}
