// Package metrics owns the Prometheus registry served on the admin
// server's metrics path.
//
// Native collectors such as limits.Metrics register on Registerer.
// OpenTelemetry instruments, such as those of the instrumented usage
// history store, are bridged into the same registry through MeterProvider.
package metrics
