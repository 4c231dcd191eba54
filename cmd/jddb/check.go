package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
	"github.com/fortinpy85/jddb-sub001/pkg/limits"
)

var checkFlags struct {
	operation string
	tokens    int64
	cost      float64
	user      string
}

var checkCmd = &cobra.Command{
	Use:   "check <service>",
	Short: "Run one admission check against the configured limits",
	Long: `Run one admission check for a hypothetical call and print the decision
with the state of every dimension.

With window_backend: redis the check sees the usage shared by all running
instances. With the memory backend it only validates the request against the
configured thresholds.

Exits 2 when the call would be denied.

Examples:
  jddb check openai --tokens 1500 --cost 0.03
  jddb check openai --operation summarize -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.operation, "operation", "", "operation type")
	checkCmd.Flags().Int64Var(&checkFlags.tokens, "tokens", 0, "estimated tokens (1 when omitted)")
	checkCmd.Flags().Float64Var(&checkFlags.cost, "cost", 0, "estimated cost in dollars")
	checkCmd.Flags().StringVar(&checkFlags.user, "user", "", "user id")
}

// checkView is the printed outcome of one check.
type checkView struct {
	Service      string                   `json:"service"`
	Decision     string                   `json:"decision"`
	Allowed      bool                     `json:"allowed"`
	Statuses     []limits.RateLimitStatus `json:"statuses"`
	DelaySeconds float64                  `json:"recommended_delay_seconds"`
	Error        string                   `json:"error,omitempty"`
}

func (v checkView) Table() cli.Table {
	rows := make([][]string, 0, len(v.Statuses))
	for _, s := range v.Statuses {
		rows = append(rows, []string{
			string(s.Dimension),
			strconv.FormatInt(s.CurrentUsage, 10),
			strconv.FormatInt(s.Limit, 10),
			strconv.FormatBool(s.IsExceeded),
			s.ResetTime.Format(time.RFC3339),
		})
	}
	rows = append(rows, []string{"decision", v.Decision, "", "", ""})
	if v.DelaySeconds > 0 {
		rows = append(rows, []string{"retry_after", fmt.Sprintf("%.1fs", v.DelaySeconds), "", "", ""})
	}
	return cli.Table{
		Headers: []string{"DIMENSION", "USAGE", "LIMIT", "EXCEEDED", "RESET"},
		Rows:    rows,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return &cli.CommandError{Command: "check", Code: cli.ExitBadInput, Err: err}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	service := args[0]
	res := a.limits.CheckRateLimit(cmd.Context(), limits.CheckRequest{
		Service:         service,
		OperationType:   checkFlags.operation,
		EstimatedTokens: checkFlags.tokens,
		HasTokens:       cmd.Flags().Changed("tokens"),
		EstimatedCost:   checkFlags.cost,
		UserID:          checkFlags.user,
	})

	view := checkView{
		Service:  service,
		Decision: res.Decision.String(),
		Allowed:  res.Allowed,
		Statuses: res.Statuses,
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	if !res.Allowed {
		view.DelaySeconds = a.limits.RecommendedDelay(service, checkFlags.operation).Seconds()
	}
	if view.Statuses == nil {
		view.Statuses = []limits.RateLimitStatus{}
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), view); err != nil {
		return err
	}
	if !res.Allowed {
		return &cli.CommandError{
			Command: "check",
			Code:    cli.ExitDenied,
			Err:     fmt.Errorf("rate limit exceeded for %s", service),
		}
	}
	return nil
}
