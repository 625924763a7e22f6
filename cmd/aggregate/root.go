package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Batch job that turns the raw order export into the metrics artifact",
	Long: `aggregate reads the raw order records (CSV or XLSX), counts them by
status and purchase year, and atomically replaces the metrics artifact
served by GET /metrics. Run it from cron; a non-zero exit means the
previous artifact was left untouched.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
	rootCmd.AddCommand(newRunCmd())
}
