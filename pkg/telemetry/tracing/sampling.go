package tracing

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newSampler keeps ratio of root traces and follows the parent's decision
// for child spans. A ratio of 1 or more keeps everything and 0 or less keeps
// nothing.
func newSampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio >= 1.0:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}
