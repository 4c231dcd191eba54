package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jddb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_ServicesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
limits:
  services:
    openai:
      requests_per_minute: {threshold: 3, window_seconds: 60, burst_allowance: 1.0}
      cost_per_day: {threshold: 500, window_seconds: 86400}
history:
  backend: memory
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	svc, ok := cfg.Limits.Services["openai"]
	require.True(t, ok)
	require.NotNil(t, svc.RequestsPerMinute)
	assert.Equal(t, 3, svc.RequestsPerMinute.Threshold)
	assert.Equal(t, 1.0, svc.RequestsPerMinute.BurstAllowance)
	require.NotNil(t, svc.CostPerDay)
	assert.Equal(t, DefaultBurstAllowance, svc.CostPerDay.BurstAllowance)
	assert.Nil(t, svc.TokensPerMinute)

	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Equal(t, DefaultWindowBackend, cfg.Limits.WindowBackend)
	assert.Equal(t, DefaultLoggingLevel, cfg.Telemetry.Logging.Level)
	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, DefaultRetentionSchedule, cfg.History.Retention.Schedule)
}

func TestLoadConfig_EmptyServicesUseBuiltInDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "history:\n  backend: memory\n"))
	require.NoError(t, err)

	svc, ok := cfg.Limits.Services[DefaultService]
	require.True(t, ok)
	count := 0
	svc.Each(func(string, RateLimitConfig) { count++ })
	assert.Equal(t, 4, count)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read configuration file")
}

func TestLoadConfig_BadYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "limits: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "history:\n  backend: memory\n")

	t.Setenv("JDDB_SERVER_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("JDDB_TELEMETRY_LOGGING_LEVEL", "debug")
	t.Setenv("JDDB_LIMITS_ATOMIC_CHECKS", "true")
	t.Setenv("JDDB_HISTORY_QUERY_TIMEOUT", "3s")
	t.Setenv("JDDB_HISTORY_RETENTION_DAYS", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9999", cfg.Server.ListenAddress)
	assert.Equal(t, "debug", cfg.Telemetry.Logging.Level)
	assert.True(t, cfg.Limits.AtomicChecks)
	assert.Equal(t, 3*time.Second, cfg.History.QueryTimeout)
	assert.Equal(t, DefaultRetentionDays, cfg.History.Retention.Days)
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("JDDB_HISTORY_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.History.Backend)
	assert.Contains(t, cfg.Limits.Services, DefaultService)
}

func TestLoadConfigWithEnvOverrides_InvalidOverride(t *testing.T) {
	t.Setenv("JDDB_LIMITS_WINDOW_BACKEND", "redis")

	_, err := LoadConfigWithEnvOverrides("")
	require.Error(t, err)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 1)
	assert.Equal(t, "limits.redis.addr", verr.Errors[0].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name: "zero threshold",
			mutate: func(c *Config) {
				c.Limits.Services["svc"] = ServiceLimits{
					RequestsPerMinute: &RateLimitConfig{Threshold: 0, WindowSeconds: 60, BurstAllowance: 1.2},
				}
			},
			field: "limits.services.svc.requests_per_minute.threshold",
		},
		{
			name: "burst below one",
			mutate: func(c *Config) {
				c.Limits.Services["svc"] = ServiceLimits{
					CostPerHour: &RateLimitConfig{Threshold: 10, WindowSeconds: 3600, BurstAllowance: 0.5},
				}
			},
			field: "limits.services.svc.cost_per_hour.burst_allowance",
		},
		{
			name:   "service without dimensions",
			mutate: func(c *Config) { c.Limits.Services["svc"] = ServiceLimits{} },
			field:  "limits.services.svc",
		},
		{
			name:   "unknown window backend",
			mutate: func(c *Config) { c.Limits.WindowBackend = "etcd" },
			field:  "limits.window_backend",
		},
		{
			name:   "unknown history backend",
			mutate: func(c *Config) { c.History.Backend = "mongo" },
			field:  "history.backend",
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.History.Backend = "postgres" },
			field:  "history.postgres.dsn",
		},
		{
			name:   "bad sqlite driver",
			mutate: func(c *Config) { c.History.SQLite.Driver = "sqlite4" },
			field:  "history.sqlite.driver",
		},
		{
			name:   "bad cron",
			mutate: func(c *Config) { c.History.Retention.Schedule = "every day" },
			field:  "history.retention.schedule",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Telemetry.Logging.Level = "verbose" },
			field:  "telemetry.logging.level",
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.Exporter = "otlp"
			},
			field: "telemetry.tracing.endpoint",
		},
		{
			name:   "sample ratio out of range",
			mutate: func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			field:  "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			fields := make([]string, 0, len(verr.Errors))
			for _, fe := range verr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_DefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestValidationError_Message(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	assert.Equal(t, "configuration validation failed: a: bad", one.Error())

	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	assert.Contains(t, two.Error(), "2 errors")
	assert.Contains(t, two.Error(), "  - b: worse")
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := Default()
	before := *cfg.Limits.Services[DefaultService].RequestsPerMinute
	ApplyDefaults(cfg)
	assert.Equal(t, before, *cfg.Limits.Services[DefaultService].RequestsPerMinute)
}
