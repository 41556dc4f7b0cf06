// Package control exposes the proxy lifecycle of a running relay process
// over a local HTTP/JSON API, and provides the Go client used by the relay
// CLI.
//
// Routes:
//
//	GET  /v1/status             proxy state
//	POST /v1/proxy/start        start (body: optional ProxyConfig, default the saved route)
//	POST /v1/proxy/stop         stop
//	POST /v1/proxy/reconfigure  restart a running proxy on a new route
//	GET  /v1/config             saved route
//	PUT  /v1/config             save a route, restarting the proxy if it is running
//	GET  /v1/events             lifecycle history, newest first
//	GET  /metrics               Prometheus metrics
//	GET  /health /ready /version
//
// Lifecycle endpoints answer with an OperationResult: 200 when it
// succeeded, 400 when the request was rejected before reaching the proxy,
// 500 when the operation itself failed.
package control
