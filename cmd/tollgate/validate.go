package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arbiter-hq/tollgate/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long: `Load a configuration file, apply defaults, and validate it.

All validation errors are reported together, so a broken file can be
fixed in one pass.

Examples:
  tollgate validate
  tollgate validate --config /etc/tollgate/tollgate.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	targets := cfg.Targets()
	fmt.Printf("%s is valid\n\n", cfgFile)
	fmt.Printf("Providers: %d\n", len(cfg.Providers))
	fmt.Printf("Targets:   %d\n", len(targets))

	if verbose {
		fmt.Println()
		for _, pm := range targets {
			fmt.Printf("  %-40s %6d rpm  %8d tpm  $%.4f/$%.4f per 1K\n",
				pm.Key(), pm.RequestsPerMinute, pm.TokensPerMinute,
				pm.CostPer1KInput, pm.CostPer1KOutput)
		}
	}

	if cfg.Budgets.Daily > 0 || cfg.Budgets.Weekly > 0 || cfg.Budgets.Monthly > 0 {
		fmt.Printf("Budgets:   daily $%.2f, weekly $%.2f, monthly $%.2f\n",
			cfg.Budgets.Daily, cfg.Budgets.Weekly, cfg.Budgets.Monthly)
	} else {
		fmt.Println("Budgets:   none configured")
	}
	fmt.Printf("Queue:     %d slots\n", cfg.Queue.Capacity)
	fmt.Printf("Retry:     %d attempts, base %s, cap %s\n",
		cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	return nil
}
