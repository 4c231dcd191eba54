// Package logging builds the structured slog logger used across the
// service.
//
// # Configuration
//
//	telemetry:
//	  logging:
//	    level: info      # debug, info, warn, error
//	    format: json     # json, text
//	    add_source: false
//
// # Context Fields
//
// Records logged with a context carry its request ID, metered service name
// and OpenTelemetry trace and span IDs:
//
//	ctx = logging.WithRequestID(ctx, id)
//	logger.InfoContext(ctx, "rate limit exceeded", "dimension", dim)
package logging
