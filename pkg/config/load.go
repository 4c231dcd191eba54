package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JDDB_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML without applying defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) == 0 {
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention JDDB_SECTION_FIELD (e.g., JDDB_SERVER_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else {
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envFloat(key string, dst *float64) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

// applyEnvOverrides applies JDDB_* environment variables. Unparseable
// values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Limits overrides
	envBool("LIMITS_ATOMIC_CHECKS", &cfg.Limits.AtomicChecks)
	envString("LIMITS_WINDOW_BACKEND", &cfg.Limits.WindowBackend)
	envString("LIMITS_REDIS_ADDR", &cfg.Limits.Redis.Addr)
	envString("LIMITS_REDIS_PASSWORD", &cfg.Limits.Redis.Password)
	envInt("LIMITS_REDIS_DB", &cfg.Limits.Redis.DB)
	envString("LIMITS_REDIS_KEY_PREFIX", &cfg.Limits.Redis.KeyPrefix)

	// History overrides
	envString("HISTORY_BACKEND", &cfg.History.Backend)
	envString("HISTORY_SQLITE_PATH", &cfg.History.SQLite.Path)
	envString("HISTORY_SQLITE_DRIVER", &cfg.History.SQLite.Driver)
	envString("HISTORY_POSTGRES_DSN", &cfg.History.Postgres.DSN)
	envInt("HISTORY_RETENTION_DAYS", &cfg.History.Retention.Days)
	envString("HISTORY_RETENTION_SCHEDULE", &cfg.History.Retention.Schedule)
	envDuration("HISTORY_QUERY_TIMEOUT", &cfg.History.QueryTimeout)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_EXPORTER", &cfg.Telemetry.Tracing.Exporter)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envFloat("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
}
