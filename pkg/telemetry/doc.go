// Package telemetry groups relay's observability packages.
//
// # Components
//
//   - logging: slog construction, runtime level changes, secret redaction and
//     request ID context helpers
//   - metrics: Prometheus collector for forwarding, lifecycle and history
//   - tracing: OpenTelemetry tracer with OTLP/gRPC export and W3C propagation
//   - health: liveness and readiness probes for the control API
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  cfg.Telemetry.Logging.Level,
//	    Format: cfg.Telemetry.Logging.Format,
//	})
//	slog.SetDefault(logger.Logger)
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	defer tracer.Shutdown(context.Background())
//
// The telemetry sections of the configuration file are described in
// pkg/config.
package telemetry
