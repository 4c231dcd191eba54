package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/config"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
	"github.com/fortinpy85/jddb-sub001/pkg/limits/ratelimit"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/logging"
	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	limits  *limits.Service
	history usage.HistoryStore
	redis   redis.UniversalClient
}

type appOptions struct {
	registerer  prometheus.Registerer
	openHistory bool
}

// loadConfig reads cfgFile (or defaults) with JDDB_* overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the command logger. Commands other than run keep logs
// off stdout so their output stays parseable.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Telemetry.Logging, w)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// newApp connects the window backend, builds the limits service and, when
// requested, opens the usage history store.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, o appOptions) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	opts := []limits.Option{
		limits.WithLogger(logger),
		limits.WithAtomicChecks(cfg.Limits.AtomicChecks),
	}
	if o.registerer != nil {
		opts = append(opts, limits.WithMetrics(limits.NewMetrics(o.registerer)))
	}

	if cfg.Limits.WindowBackend == "redis" {
		a.redis, err = connectRedis(ctx, cfg.Limits.Redis)
		if err != nil {
			return nil, err
		}
		opts = append(opts, limits.WithWindowFactory(redisWindows(a.redis, cfg.Limits.Redis.KeyPrefix)))
	}

	configured, err := limits.FromConfig(cfg.Limits)
	if err != nil {
		return nil, cli.NewConfigError("limits", err.Error())
	}
	a.limits, err = limits.NewService(configured, opts...)
	if err != nil {
		return nil, cli.NewConfigError("limits", err.Error())
	}

	if o.openHistory {
		a.history, err = usage.Open(ctx, cfg.History)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage history: %w", err)
		}
	}
	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// redisWindows keys each window as prefix:service:dimension so every
// instance sharing the prefix sees the same usage.
func redisWindows(rdb redis.UniversalClient, prefix string) limits.WindowFactory {
	return func(service string, dim limits.Dimension, window time.Duration) ratelimit.Counter {
		key := strings.Join([]string{prefix, service, string(dim)}, ":")
		return ratelimit.NewRedisWindow(rdb, key, window)
	}
}

// queryContext bounds one analytics call by history.query_timeout.
func (a *app) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.History.QueryTimeout > 0 {
		return context.WithTimeout(ctx, a.cfg.History.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// Close releases the history store and the Redis client.
func (a *app) Close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
