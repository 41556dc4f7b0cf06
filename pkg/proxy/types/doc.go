// Package types defines the value types shared by the proxy lifecycle manager,
// the request forwarder, the health probe and the control API.
//
// # Core Types
//
// Configuration:
//   - ProxyConfig: the immutable target host/port and proxy port of one instance
//
// Lifecycle results:
//   - OperationResult: uniform outcome of start, stop and reconfigure
//   - Status: whether an instance is running and with which config
//
// Wire envelopes:
//   - ErrorEnvelope: JSON body returned when forwarding to the upstream fails
//   - HealthResponse: JSON body of the liveness probe
//
// # JSON Serialization
//
// Field names follow the camelCase convention of the desktop caller that
// originally consumed these shapes (targetHost, isRunning, ...), so existing
// callers can decode them without a translation layer.
package types
