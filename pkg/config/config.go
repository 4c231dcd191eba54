package config

import "time"

// Config is the root configuration of the usage governance service.
type Config struct {
	// Limits configures per-service rate limits.
	Limits LimitsConfig `yaml:"limits"`

	// History configures the usage history store read by analytics.
	History HistoryConfig `yaml:"history"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures the admin HTTP server.
	Server ServerConfig `yaml:"server"`
}

// LimitsConfig contains rate limiting configuration.
type LimitsConfig struct {
	// Services maps a service name (e.g. "openai") to its limits.
	// When empty, built-in defaults for "openai" are used.
	Services map[string]ServiceLimits `yaml:"services"`

	// AtomicChecks makes multi-dimension checks all-or-nothing.
	// Default: false
	AtomicChecks bool `yaml:"atomic_checks"`

	// WindowBackend selects where usage windows live.
	// Options: "memory", "redis"
	// Default: "memory"
	WindowBackend string `yaml:"window_backend"`

	// Redis configures the shared window backend.
	Redis RedisConfig `yaml:"redis"`
}

// ServiceLimits holds one optional limit per dimension.
// A nil entry leaves that dimension unenforced.
type ServiceLimits struct {
	RequestsPerMinute *RateLimitConfig `yaml:"requests_per_minute"`
	TokensPerMinute   *RateLimitConfig `yaml:"tokens_per_minute"`

	// Cost thresholds are in cents.
	CostPerHour *RateLimitConfig `yaml:"cost_per_hour"`
	CostPerDay  *RateLimitConfig `yaml:"cost_per_day"`
}

// Each calls fn for every configured dimension, keyed by its dimension name.
func (s ServiceLimits) Each(fn func(dimension string, rl RateLimitConfig)) {
	if s.RequestsPerMinute != nil {
		fn("requests_per_minute", *s.RequestsPerMinute)
	}
	if s.TokensPerMinute != nil {
		fn("tokens_per_minute", *s.TokensPerMinute)
	}
	if s.CostPerHour != nil {
		fn("cost_per_hour", *s.CostPerHour)
	}
	if s.CostPerDay != nil {
		fn("cost_per_day", *s.CostPerDay)
	}
}

// RateLimitConfig is a single threshold over a window.
type RateLimitConfig struct {
	Threshold     int `yaml:"threshold"`
	WindowSeconds int `yaml:"window_seconds"`

	// BurstAllowance sizes the token bucket above the threshold.
	// Default: 1.2
	BurstAllowance float64 `yaml:"burst_allowance"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Addr is host:port.
	Addr string `yaml:"addr"`

	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces window keys.
	// Default: "jddb:limits"
	KeyPrefix string `yaml:"key_prefix"`

	// DialTimeout bounds connection setup.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// HistoryConfig configures the usage history store.
type HistoryConfig struct {
	// Backend selects the store.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`

	Retention RetentionConfig `yaml:"retention"`

	// QueryTimeout bounds each analytics query.
	// Default: 10s
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/usage.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver name.
	// Options: "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// JournalMode is passed to PRAGMA journal_mode.
	// Default: "WAL"
	JournalMode string `yaml:"journal_mode"`

	// BusyTimeout is passed to PRAGMA busy_timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns limits open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	// DSN is a libpq connection string or URL.
	DSN string `yaml:"dsn"`

	// MaxConns limits the pool size.
	// Default: 10
	MaxConns int32 `yaml:"max_conns"`
}

// RetentionConfig controls pruning of old usage history.
type RetentionConfig struct {
	// Days of history to keep. Zero disables pruning.
	// Default: 30
	Days int `yaml:"days"`

	// Schedule is a cron expression for the pruning job.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Path serves the Prometheus endpoint on the admin server.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled turns tracing on.
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter.
	// Options: "stdout", "otlp"
	// Default: "stdout"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for OTLP.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces kept.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is host:port.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}
