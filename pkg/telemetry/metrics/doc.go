// Package metrics provides Prometheus metrics collection for relay.
//
// # Metrics Categories
//
//   - Forwarding: request count by method and code, latency, upstream errors
//   - Lifecycle: start/stop/reconfigure results, listener state, held route
//   - History: stored, dropped and pruned lifecycle events
//
// All metrics live in a private registry owned by the Collector; nothing is
// registered with the Prometheus default registry.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	forwarder, _ := proxy.NewForwarder(route, proxy.Options{Metrics: collector})
//	mux.Handle("/metrics", collector.Handler())
package metrics
