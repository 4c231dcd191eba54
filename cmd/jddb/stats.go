package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
)

var statsFlags struct {
	periodHours int
}

var statsCmd = &cobra.Command{
	Use:   "stats <service>",
	Short: "Aggregate recorded usage of a service",
	Long: `Aggregate the usage history of a service over the last N hours.

Live window utilization is included only when windows are shared through
Redis; a standalone process starts with empty windows.

Examples:
  # Last 24 hours
  jddb stats openai

  # Last week as JSON
  jddb stats openai --period-hours 168 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsFlags.periodHours, "period-hours", 24, "hours of history to aggregate")
}

// statsView renders UsageStats as a metric/value table.
type statsView struct {
	limits.UsageStats
}

func (v statsView) Table() cli.Table {
	rows := [][]string{
		{"service", v.Service},
		{"period_hours", strconv.Itoa(v.PeriodHours)},
		{"total_requests", strconv.FormatInt(v.TotalRequests, 10)},
		{"total_tokens", strconv.FormatInt(v.TotalTokens, 10)},
		{"total_cost", fmt.Sprintf("$%.4f", v.TotalCost)},
		{"avg_response_time", fmt.Sprintf("%.3fs", v.AvgResponseTime)},
	}
	for _, dim := range limits.Dimensions {
		u, ok := v.CurrentRateLimits[dim]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(dim),
			fmt.Sprintf("%d/%d (%.0f%%)", u.Current, u.Limit, u.Utilization*100),
		})
	}
	return cli.Table{Headers: []string{"METRIC", "VALUE"}, Rows: rows}
}

func runStats(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return &cli.CommandError{Command: "stats", Code: cli.ExitBadInput, Err: err}
	}
	if statsFlags.periodHours <= 0 {
		return &cli.CommandError{Command: "stats", Code: cli.ExitBadInput, Err: errors.New("--period-hours must be positive")}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger, appOptions{openHistory: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.queryContext(cmd.Context())
	defer cancel()

	stats := a.limits.UsageStats(ctx, a.history, args[0], statsFlags.periodHours)
	if stats.Error != "" {
		return cli.NewCommandError("stats", errors.New(stats.Error))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), statsView{stats})
}
