package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/config"
	"github.com/fortinpy85/jddb-sub001/pkg/server"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/health"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/logging"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/metrics"
	"github.com/fortinpy85/jddb-sub001/pkg/telemetry/tracing"
	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

const serviceName = "jddb"

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the admin server",
	Long: `Start the admin server with the specified configuration.

The server exposes health probes, Prometheus metrics and read-only views of
the configured limits and usage history. The configuration file is watched
and limit changes are applied without a restart.

Examples:
  # Start with built-in defaults
  jddb run

  # Start with a config file
  jddb run --config /etc/jddb/config.yaml

  # Override listen address
  jddb run --listen 0.0.0.0:9090

  # Validate config without starting the server
  jddb run --config config.yaml --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	registry, err := metrics.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	// Installed before the history store is opened so its instruments
	// land on this registry.
	registry.InstallGlobal()
	defer shutdownWithTimeout(registry.Shutdown)

	tracer, err := tracing.New(ctx, cfg.Telemetry.Tracing, serviceName, tracing.WithVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownWithTimeout(tracer.Shutdown)

	a, err := newApp(ctx, cfg, logger, appOptions{
		registerer:  registry.Registerer(),
		openHistory: true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	checker := health.New(5 * time.Second)
	checker.Register("history", a.history.Ping)
	if a.redis != nil {
		checker.Register("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}

	scheduler := usage.NewRetentionScheduler(usage.NewPruner(a.history, usage.RetentionConfig{
		Days:     cfg.History.Retention.Days,
		Schedule: cfg.History.Retention.Schedule,
	}))
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}
	defer scheduler.Stop()

	if cfgFile != "" && !runFlags.noWatch {
		watcher, err := config.NewWatcher(cfgFile, 0, logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) error {
				return a.limits.Apply(next.Limits)
			})
			if err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	deps := server.Deps{
		Limits:       a.limits,
		History:      a.history,
		Health:       checker,
		Metrics:      registry.Handler(),
		MetricsPath:  cfg.Telemetry.Metrics.Path,
		QueryTimeout: cfg.History.QueryTimeout,
		Logger:       logger,
	}
	if tracer.Enabled() {
		deps.TracingName = serviceName
	}
	srv, err := server.New(cfg.Server, deps)
	if err != nil {
		return err
	}

	logger.Info("jddb starting",
		"version", Version,
		"services", a.limits.Services(),
		"window_backend", cfg.Limits.WindowBackend,
		"history_backend", cfg.History.Backend,
		"atomic_checks", cfg.Limits.AtomicChecks,
	)
	return srv.Start(ctx)
}

func shutdownWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fn(ctx)
}
