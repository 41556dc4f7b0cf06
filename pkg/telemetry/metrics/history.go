package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"relaydesk/relay/pkg/config"
)

// HistoryMetrics tracks lifecycle event storage.
//
// Metrics:
//   - relay_history_events_total: Events stored by type
//   - relay_history_events_dropped_total: Events dropped because the queue was full
//   - relay_history_events_pruned_total: Events removed by retention
type HistoryMetrics struct {
	events  *prometheus.CounterVec
	dropped prometheus.Counter
	pruned  prometheus.Counter
}

// NewHistoryMetrics creates and registers history metrics with the provided registry.
func NewHistoryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HistoryMetrics {
	hm := &HistoryMetrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "history",
				Name:      "events_total",
				Help:      "Total number of lifecycle events stored",
			},
			[]string{"type"},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "history",
				Name:      "events_dropped_total",
				Help:      "Total number of lifecycle events dropped before storage",
			},
		),
		pruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "history",
				Name:      "events_pruned_total",
				Help:      "Total number of lifecycle events removed by retention",
			},
		),
	}

	registry.MustRegister(hm.events, hm.dropped, hm.pruned)
	return hm
}

// RecordEvent records one stored event.
func (hm *HistoryMetrics) RecordEvent(eventType string) {
	hm.events.WithLabelValues(eventType).Inc()
}

// RecordDropped records one dropped event.
func (hm *HistoryMetrics) RecordDropped() {
	hm.dropped.Inc()
}

// RecordPruned adds n pruned events.
func (hm *HistoryMetrics) RecordPruned(n int64) {
	if n > 0 {
		hm.pruned.Add(float64(n))
	}
}
