// Package health provides liveness and readiness probes for relay's control
// plane.
//
// Liveness (/health) only reports that the control API is serving.
// Readiness (/ready) runs the registered checks concurrently, each under its
// own timeout. relay registers a "history" check that pings the event store
// and an "upstream" check that dials the target while the proxy is running.
//
// These probes describe the relay process. The proxy listener answers its
// own /health from pkg/proxy/handlers.
package health
