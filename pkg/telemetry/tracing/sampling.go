package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler maps a sample ratio onto a sampler. A ratio of 1 samples
// every trace and 0 samples none; anything in between samples by trace ID
// hash, so every service makes the same decision for a given trace.
//
// The result is wrapped in ParentBased, which respects the parent span's
// sampling decision when one arrives with the request:
//   - If parent span is sampled, the child is sampled
//   - If parent span is not sampled, the child is not sampled
//   - If no parent span, the ratio applies
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler

	switch {
	case ratio < 0 || ratio > 1:
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	case ratio == 1:
		base = sdktrace.AlwaysSample()
	case ratio == 0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(base), nil
}
