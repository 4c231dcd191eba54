// Package config provides configuration management for the usage governance
// service.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("jddb.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention JDDB_SECTION_FIELD:
//
//   - JDDB_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - JDDB_HISTORY_BACKEND overrides history.backend
//   - JDDB_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Per-service limits are only read from the file.
//
// # Example
//
//	limits:
//	  services:
//	    openai:
//	      requests_per_minute: {threshold: 60, window_seconds: 60}
//	      tokens_per_minute:   {threshold: 90000, window_seconds: 60}
//	      cost_per_hour:       {threshold: 1000, window_seconds: 3600}   # cents
//	      cost_per_day:        {threshold: 10000, window_seconds: 86400} # cents
//	history:
//	  backend: sqlite
//	  sqlite:
//	    path: data/usage.db
//
// # Hot Reload
//
// Watcher re-reads the file when it changes and hands the new Config to a
// callback; the service binary uses it to push new limits into the running
// rate limiter.
//
// # Validation
//
// Validate collects every problem into a ValidationError made of
// FieldErrors keyed by dotted field path.
package config
