package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All field errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateServer(&cfg.Server)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	for name, svc := range cfg.Services {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{Field: "limits.services", Message: "service name must not be empty"})
			continue
		}
		configured := 0
		svc.Each(func(dim string, rl RateLimitConfig) {
			configured++
			errs = append(errs, validateRateLimit(fmt.Sprintf("limits.services.%s.%s", name, dim), rl)...)
		})
		if configured == 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("limits.services.%s", name),
				Message: "at least one dimension must be configured",
			})
		}
	}

	switch cfg.WindowBackend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "limits.redis.addr",
				Message: "redis address is required when window_backend is 'redis'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "limits.window_backend",
			Message: fmt.Sprintf("invalid window backend %q: must be 'memory' or 'redis'", cfg.WindowBackend),
		})
	}
	if cfg.Redis.DB < 0 {
		errs = append(errs, FieldError{Field: "limits.redis.db", Message: "redis db must be non-negative"})
	}

	return errs
}

func validateRateLimit(prefix string, rl RateLimitConfig) []FieldError {
	var errs []FieldError
	if rl.Threshold <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".threshold", Message: "threshold must be positive"})
	}
	if rl.WindowSeconds <= 0 {
		errs = append(errs, FieldError{Field: prefix + ".window_seconds", Message: "window_seconds must be positive"})
	}
	if rl.BurstAllowance < 1.0 {
		errs = append(errs, FieldError{
			Field:   prefix + ".burst_allowance",
			Message: fmt.Sprintf("burst_allowance must be at least 1.0, got %v", rl.BurstAllowance),
		})
	}
	return errs
}

func validateHistory(cfg *HistoryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "history.sqlite.path", Message: "sqlite path is required"})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "history.sqlite.driver",
				Message: fmt.Sprintf("invalid sqlite driver %q: must be 'sqlite' or 'sqlite3'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "history.sqlite.max_open_conns", Message: "must be at least 1"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "history.postgres.dsn",
				Message: "postgres dsn is required when backend is 'postgres'",
			})
		}
		if cfg.Postgres.MaxConns < 1 {
			errs = append(errs, FieldError{Field: "history.postgres.max_conns", Message: "must be at least 1"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "history.backend",
			Message: fmt.Sprintf("invalid history backend %q: must be 'memory', 'sqlite', or 'postgres'", cfg.Backend),
		})
	}

	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "history.retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.Retention.Days > 0 {
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "history.retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.QueryTimeout < 0 {
		errs = append(errs, FieldError{Field: "history.query_timeout", Message: "query timeout must be non-negative"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if cfg.Tracing.Endpoint == "" {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.endpoint",
					Message: "tracing endpoint is required for the otlp exporter",
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q: must be 'stdout' or 'otlp'", cfg.Tracing.Exporter),
			})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server", Message: "timeouts must be non-negative"})
	}
	return errs
}
