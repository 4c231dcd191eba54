// Package server provides the admin HTTP server.
//
// The server exposes read-only views of the limits service and usage history,
// plus probes and metrics. It never admits or records traffic itself; callers
// embed a limits.Service in their own request path.
//
// # Routes
//
//   - GET /healthz - Liveness probe (always 200)
//   - GET /readyz - Readiness probe (503 when a registered check fails)
//   - GET /metrics - Prometheus exposition (path is configurable)
//   - GET /v1/limits - Configured service names
//   - GET /v1/limits/{service} - Limits and current window status
//   - GET /v1/limits/{service}/delay?operation=NAME - Recommended backoff
//   - GET /v1/usage/{service}/stats?period_hours=N - History aggregates
//   - GET /v1/usage/{service}/recommendations - Cost findings
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost first):
//  1. Recovery: Recovers from panics and returns a JSON 500
//  2. RequestID: Reuses or generates X-Request-ID
//  3. Logging: One structured line per request
//  4. otelmux: Server spans, when tracing is enabled
//
// # Basic Usage
//
//	srv, err := server.New(cfg.Server, server.Deps{
//	    Limits:      svc,
//	    History:     store,
//	    Health:      checker,
//	    Metrics:     registry.Handler(),
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx) // returns after ctx is cancelled and shutdown completes
package server
