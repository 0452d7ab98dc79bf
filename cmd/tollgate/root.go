package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tollgate",
	Short: "Tollgate - admission control for outbound LLM API calls",
	Long: `Tollgate is an admission control and resilience engine for outbound
LLM API calls.

It sits between an application and its LLM providers, providing:
  - Sliding-window rate limiting per provider/model
  - Spend budgets with calendar periods and alert thresholds
  - Priority queueing when capacity is exhausted
  - Jittered exponential backoff honoring provider retry hints
  - Failover to alternate provider/model targets`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tollgate.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
