package config

import "time"

// Default values for configuration fields.
const (
	// Limits defaults
	DefaultWindowBackend    = "memory"
	DefaultBurstAllowance   = 1.2
	DefaultRedisKeyPrefix   = "jddb:limits"
	DefaultRedisDialTimeout = 5 * time.Second
	DefaultService          = "openai"

	// History defaults
	DefaultHistoryBackend     = "sqlite"
	DefaultSQLitePath         = "data/usage.db"
	DefaultSQLiteDriver       = "sqlite"
	DefaultSQLiteJournalMode  = "WAL"
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultSQLiteMaxOpenConns = 10
	DefaultPostgresMaxConns   = 10
	DefaultRetentionDays      = 30
	DefaultRetentionSchedule  = "0 3 * * *"
	DefaultQueryTimeout       = 10 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel   = "info"
	DefaultLoggingFormat  = "json"
	DefaultMetricsPath    = "/metrics"
	DefaultTracingExport  = "stdout"
	DefaultTracingSampler = 1.0

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:9090"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
)

// DefaultServiceLimits returns the limits applied when no services are
// configured. Cost thresholds are in cents.
func DefaultServiceLimits() map[string]ServiceLimits {
	return map[string]ServiceLimits{
		DefaultService: {
			RequestsPerMinute: &RateLimitConfig{Threshold: 60, WindowSeconds: 60, BurstAllowance: DefaultBurstAllowance},
			TokensPerMinute:   &RateLimitConfig{Threshold: 90000, WindowSeconds: 60, BurstAllowance: DefaultBurstAllowance},
			CostPerHour:       &RateLimitConfig{Threshold: 1000, WindowSeconds: 3600, BurstAllowance: DefaultBurstAllowance},
			CostPerDay:        &RateLimitConfig{Threshold: 10000, WindowSeconds: 86400, BurstAllowance: DefaultBurstAllowance},
		},
	}
}

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Limits defaults
	if len(cfg.Limits.Services) == 0 {
		cfg.Limits.Services = DefaultServiceLimits()
	}
	for name, svc := range cfg.Limits.Services {
		for _, rl := range []*RateLimitConfig{svc.RequestsPerMinute, svc.TokensPerMinute, svc.CostPerHour, svc.CostPerDay} {
			if rl != nil && rl.BurstAllowance == 0 {
				rl.BurstAllowance = DefaultBurstAllowance
			}
		}
		cfg.Limits.Services[name] = svc
	}
	if cfg.Limits.WindowBackend == "" {
		cfg.Limits.WindowBackend = DefaultWindowBackend
	}
	if cfg.Limits.Redis.KeyPrefix == "" {
		cfg.Limits.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Limits.Redis.DialTimeout == 0 {
		cfg.Limits.Redis.DialTimeout = DefaultRedisDialTimeout
	}

	// History defaults
	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistoryBackend
	}
	if cfg.History.SQLite.Path == "" {
		cfg.History.SQLite.Path = DefaultSQLitePath
	}
	if cfg.History.SQLite.Driver == "" {
		cfg.History.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.History.SQLite.JournalMode == "" {
		cfg.History.SQLite.JournalMode = DefaultSQLiteJournalMode
	}
	if cfg.History.SQLite.BusyTimeout == 0 {
		cfg.History.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.History.SQLite.MaxOpenConns == 0 {
		cfg.History.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.History.Postgres.MaxConns == 0 {
		cfg.History.Postgres.MaxConns = DefaultPostgresMaxConns
	}
	if cfg.History.Retention.Days == 0 {
		cfg.History.Retention.Days = DefaultRetentionDays
	}
	if cfg.History.Retention.Schedule == "" {
		cfg.History.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.History.QueryTimeout == 0 {
		cfg.History.QueryTimeout = DefaultQueryTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExport
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampler
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
