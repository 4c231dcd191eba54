package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <service>",
	Short: "Print cost optimization findings for a service",
	Long: `Inspect the last seven days of usage history and print findings:

  high_cost_operation          an operation type above 30% of total cost
  high_token_usage             an operation type averaging over 2000 tokens
  cost_trend_increase          the last three days cost 50% more than before
  high_rate_limit_utilization  a live window above 80% of its limit

Examples:
  jddb recommend openai
  jddb recommend openai -o csv > findings.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
}

type recommendationsView []limits.Recommendation

func (v recommendationsView) Table() cli.Table {
	rows := make([][]string, 0, len(v))
	for _, r := range v {
		target := r.OperationType
		if target == "" {
			target = string(r.Dimension)
		}
		rows = append(rows, []string{
			string(r.Priority),
			r.Type,
			target,
			strconv.FormatFloat(r.Value, 'f', 2, 64),
			r.Message,
		})
	}
	return cli.Table{
		Headers: []string{"PRIORITY", "TYPE", "TARGET", "VALUE", "MESSAGE"},
		Rows:    rows,
	}
}

func runRecommend(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return &cli.CommandError{Command: "recommend", Code: cli.ExitBadInput, Err: err}
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

	recs := a.limits.CostOptimizationRecommendations(ctx, a.history, args[0])
	if len(recs) == 0 && format == cli.FormatText {
		fmt.Fprintln(cmd.OutOrStdout(), "No recommendations.")
		return nil
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), recommendationsView(recs))
}
