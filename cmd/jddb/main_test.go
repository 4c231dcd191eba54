package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/config"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
	"github.com/fortinpy85/jddb-sub001/pkg/limits/ratelimit"
	"github.com/fortinpy85/jddb-sub001/pkg/usage"
)

const testConfig = `
limits:
  services:
    openai:
      requests_per_minute:
        threshold: 10
        window_seconds: 60
      cost_per_hour:
        threshold: 1
        window_seconds: 3600
history:
  backend: sqlite
  sqlite:
    path: %DIR%/usage.db
telemetry:
  logging:
    level: error
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeConfig writes a config whose history lives in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := strings.ReplaceAll(testConfig, "%DIR%", dir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the root command with args and resets global flag state
// afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile = ""
		verbose = false
		outputFormat = "text"
		statsFlags.periodHours = 24
		checkFlags.operation = ""
		checkFlags.tokens = 0
		checkFlags.cost = 0
		checkFlags.user = ""
		runFlags.dryRun = false
	})
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func seedHistory(t *testing.T, cfgPath string, records ...*usage.Record) {
	t.Helper()
	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)

	store, err := usage.Open(context.Background(), cfg.History)
	require.NoError(t, err)
	defer store.Close()

	for _, rec := range records {
		require.NoError(t, store.Store(context.Background(), rec))
	}
}

// ============================================================================
// version / run
// ============================================================================

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jddb "+Version)
	assert.Contains(t, out, "Go Version:")
}

func TestRunCommand_DryRun(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "run", "--config", path, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [not a map"), 0o600))

	_, err := execute(t, "run", "--config", path, "--dry-run")
	require.Error(t, err)
	assert.Equal(t, cli.ExitBadInput, cli.ExitCode(err))
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "stats", "recommend", "check", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

// ============================================================================
// stats / recommend
// ============================================================================

func TestStatsCommand_JSON(t *testing.T) {
	path := writeConfig(t)
	now := time.Now().UTC()
	seedHistory(t, path,
		&usage.Record{ID: "a", Service: "openai", OperationType: "chat", TokensUsed: 300, Cost: 0.25, ResponseTime: time.Second, Timestamp: now.Add(-time.Hour)},
		&usage.Record{ID: "b", Service: "openai", OperationType: "chat", TokensUsed: 100, Cost: 0.75, ResponseTime: 3 * time.Second, Timestamp: now.Add(-2 * time.Hour)},
		&usage.Record{ID: "c", Service: "openai", OperationType: "chat", TokensUsed: 999, Cost: 9, Timestamp: now.Add(-72 * time.Hour)},
	)

	out, err := execute(t, "stats", "openai", "--config", path, "--period-hours", "24", "-o", "json")
	require.NoError(t, err)

	var stats limits.UsageStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats), out)
	assert.Equal(t, "openai", stats.Service)
	assert.Equal(t, 24, stats.PeriodHours)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(400), stats.TotalTokens)
	assert.InDelta(t, 1.0, stats.TotalCost, 1e-9)
	assert.InDelta(t, 2.0, stats.AvgResponseTime, 1e-9)
	assert.Contains(t, stats.CurrentRateLimits, limits.RequestsPerMinute)
}

func TestStatsCommand_Text(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "stats", "openai", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "METRIC")
	assert.Contains(t, out, "total_requests")
	assert.Contains(t, out, "requests_per_minute")
}

func TestStatsCommand_BadInput(t *testing.T) {
	path := writeConfig(t)

	_, err := execute(t, "stats", "openai", "--config", path, "--period-hours", "0")
	assert.Equal(t, cli.ExitBadInput, cli.ExitCode(err))

	_, err = execute(t, "stats", "openai", "--config", path, "-o", "xml")
	assert.Equal(t, cli.ExitBadInput, cli.ExitCode(err))
}

func TestRecommendCommand(t *testing.T) {
	path := writeConfig(t)
	now := time.Now().UTC()
	seedHistory(t, path,
		&usage.Record{ID: "a", Service: "openai", OperationType: "summarize", TokensUsed: 4000, Cost: 3, Timestamp: now.Add(-time.Hour)},
		&usage.Record{ID: "b", Service: "openai", OperationType: "chat", TokensUsed: 100, Cost: 0.1, Timestamp: now.Add(-time.Hour)},
	)

	out, err := execute(t, "recommend", "openai", "--config", path, "-o", "json")
	require.NoError(t, err)

	var recs []limits.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &recs), out)
	require.Len(t, recs, 2)
	assert.Equal(t, limits.RecommendHighCostOperation, recs[0].Type)
	assert.Equal(t, "summarize", recs[0].OperationType)
	assert.Equal(t, limits.RecommendHighTokenUsage, recs[1].Type)
}

func TestRecommendCommand_Empty(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "recommend", "openai", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "No recommendations.\n", out)
}

// ============================================================================
// check
// ============================================================================

func TestCheckCommand_Allowed(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "check", "openai", "--config", path, "-o", "json")
	require.NoError(t, err)

	var view checkView
	require.NoError(t, json.Unmarshal([]byte(out), &view), out)
	assert.True(t, view.Allowed)
	assert.Equal(t, "allowed", view.Decision)
	assert.Len(t, view.Statuses, 2)
}

func TestCheckCommand_Denied(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "check", "openai", "--config", path, "--cost", "0.05", "-o", "json")
	require.Error(t, err)
	assert.Equal(t, cli.ExitDenied, cli.ExitCode(err))

	var view checkView
	require.NoError(t, json.Unmarshal([]byte(out), &view), out)
	assert.False(t, view.Allowed)
	assert.Equal(t, "denied", view.Decision)

	var exceeded []limits.Dimension
	for _, st := range view.Statuses {
		if st.IsExceeded {
			exceeded = append(exceeded, st.Dimension)
		}
	}
	assert.Equal(t, []limits.Dimension{limits.CostPerHour}, exceeded)
}

func TestCheckCommand_UnknownService(t *testing.T) {
	path := writeConfig(t)
	out, err := execute(t, "check", "anthropic", "--config", path, "-o", "json")
	require.NoError(t, err)

	var view checkView
	require.NoError(t, json.Unmarshal([]byte(out), &view), out)
	assert.True(t, view.Allowed)
	assert.Empty(t, view.Statuses)
}

func TestCheckView_Table(t *testing.T) {
	reset := time.Date(2024, 1, 10, 12, 1, 0, 0, time.UTC)
	table := checkView{
		Decision: "denied",
		Statuses: []limits.RateLimitStatus{
			{Dimension: limits.CostPerHour, CurrentUsage: 0, Limit: 1, IsExceeded: true, ResetTime: reset},
		},
		DelaySeconds: 12.5,
	}.Table()

	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"cost_per_hour", "0", "1", "true", "2024-01-10T12:01:00Z"}, table.Rows[0])
	assert.Equal(t, "denied", table.Rows[1][1])
	assert.Equal(t, "12.5s", table.Rows[2][1])
}

// ============================================================================
// wiring
// ============================================================================

func TestRedisWindows_Keys(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	factory := redisWindows(rdb, "jddb:limits")
	counter := factory("openai", limits.TokensPerMinute, time.Minute)

	w, ok := counter.(*ratelimit.RedisWindow)
	require.True(t, ok)
	assert.Equal(t, "jddb:limits:openai:tokens_per_minute", w.Key())
	assert.Equal(t, time.Minute, w.Window())
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.WindowBackend = "redis"
	cfg.Limits.Redis.Addr = "127.0.0.1:1"
	cfg.Limits.Redis.DialTimeout = 200 * time.Millisecond

	_, err := newApp(context.Background(), cfg, testLogger(), appOptions{})
	assert.Error(t, err)
}

func TestNewApp_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.History.Backend = "memory"

	a, err := newApp(context.Background(), cfg, testLogger(), appOptions{openHistory: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{config.DefaultService}, a.limits.Services())
	assert.NotNil(t, a.history)
	assert.Nil(t, a.redis)
}
