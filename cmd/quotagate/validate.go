package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/quotagate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Println("Configuration valid")
		fmt.Printf("  Upstream:   %s\n", cfg.Upstream.URL)
		fmt.Printf("  Free limit: %d per %s\n", cfg.Quota.FreeLimit, cfg.Quota.PeriodLength)
		fmt.Printf("  Fail open:  %v\n", *cfg.Quota.FailOpen)
		fmt.Printf("  Database:   %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
