package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quotagate",
	Short: "Freemium usage-quota gate for metered features",
	Long: `Quotagate sits between callers and a protected upstream service and
enforces a free-tier quota: free accounts get a fixed number of metered
calls per rolling period, subscribed accounts pass through unmetered.

Quick start:
  quotagate serve     # Start the gate server
  quotagate validate  # Validate configuration`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "quotagate.yaml", "config file path")
}
