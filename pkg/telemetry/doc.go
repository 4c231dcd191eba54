// Package telemetry groups the observability packages of the service.
//
//   - logging: slog logger construction and context fields
//   - metrics: Prometheus registry with an OpenTelemetry meter bridge
//   - tracing: OpenTelemetry tracer provider and exporters
//   - health: liveness and readiness probes
package telemetry
