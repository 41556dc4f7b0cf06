package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"relaydesk/relay/pkg/config"
	"relaydesk/relay/pkg/proxy/types"
)

// Collector owns relay's Prometheus registry and records every metric the
// forwarder, the lifecycle manager and the history recorder produce.
// A disabled collector accepts every call and records nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	forward   *ForwardMetrics
	lifecycle *LifecycleMetrics
	history   *HistoryMetrics
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil, a private registry is created and
// the Go runtime and process collectors are added to it.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		config:    cfg,
		registry:  registry,
		forward:   NewForwardMetrics(cfg, registry),
		lifecycle: NewLifecycleMetrics(cfg, registry),
		history:   NewHistoryMetrics(cfg, registry),
	}
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordForward records one request relayed (or answered locally) by the
// forwarder and the status the client received.
func (c *Collector) RecordForward(method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.forward.RecordRequest(normalizeMethod(method), strconv.Itoa(status), duration)
}

// RecordUpstreamError records a request that failed at the upstream.
func (c *Collector) RecordUpstreamError(method string) {
	if !c.config.Enabled {
		return
	}
	c.forward.RecordUpstreamError(normalizeMethod(method))
}

// RecordTransition records a lifecycle operation ("start", "stop",
// "reconfigure") and whether it succeeded.
func (c *Collector) RecordTransition(operation string, success bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.lifecycle.RecordTransition(operation, success, duration)
}

// ObserveState publishes whether a listener is open and which route the
// manager holds.
func (c *Collector) ObserveState(running bool, cfg *types.ProxyConfig) {
	if !c.config.Enabled {
		return
	}
	c.lifecycle.ObserveState(running, cfg)
}

// RecordHistoryEvent records an event written to history storage.
func (c *Collector) RecordHistoryEvent(eventType string) {
	if !c.config.Enabled {
		return
	}
	c.history.RecordEvent(eventType)
}

// RecordHistoryDropped records an event the async recorder could not queue.
func (c *Collector) RecordHistoryDropped() {
	if !c.config.Enabled {
		return
	}
	c.history.RecordDropped()
}

// RecordHistoryPruned records events removed by retention.
func (c *Collector) RecordHistoryPruned(n int64) {
	if !c.config.Enabled {
		return
	}
	c.history.RecordPruned(n)
}

// normalizeMethod folds non-standard HTTP methods into one label value so
// arbitrary client input cannot grow the label set.
func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
		http.MethodConnect, http.MethodTrace:
		return method
	default:
		return "OTHER"
	}
}
