// Package tracing sets up OpenTelemetry tracing.
//
// Spans are exported to stdout or to an OTLP gRPC collector:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    exporter: otlp
//	    endpoint: localhost:4317
//	    insecure: true
//	    sample_ratio: 0.1
//
// The history store and the admin server create their spans through the
// global provider installed by New.
package tracing
