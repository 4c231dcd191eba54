package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortinpy85/jddb-sub001/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "jddb",
	Short: "jddb - LLM rate limiting and usage governance",
	Long: `jddb enforces per-service request, token and cost limits on outbound LLM
calls and reports on recorded usage history.

Each service is limited on up to four dimensions:
  - requests_per_minute
  - tokens_per_minute
  - cost_per_hour (cents)
  - cost_per_day (cents)

Without a configuration file the built-in defaults for "openai" apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the mapped status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and JDDB_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format (text, json, csv)")
}
