// Package tracing provides OpenTelemetry distributed tracing for relay.
//
// # Overview
//
// Each forwarded request produces a client span named "proxy.forward"
// carrying the method, target path, upstream URL, body kind and the status
// returned to the client. Lifecycle operations (start, stop, reconfigure)
// produce their own spans. Spans are exported over OTLP/gRPC.
//
// # Sampling
//
// telemetry.tracing.sample_ratio selects the fraction of new traces that are
// recorded. A sampled parent always wins.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "proxy.start")
//	defer span.End()
//
// When tracing is disabled New returns a noop tracer, so callers never need
// to check Enabled before starting spans.
package tracing
