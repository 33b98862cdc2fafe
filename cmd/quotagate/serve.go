package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/quotagate/bootstrap"
	"github.com/artpar/quotagate/config"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quota gate server",
	Long: `Start the quotagate server.

The server will:
  - Load configuration from quotagate.yaml (or --config)
  - Or load configuration from QUOTAGATE_* environment variables
  - Connect to the database
  - Gate metered feature calls against the upstream service

Environment variables (for container deployments):
  QUOTAGATE_UPSTREAM_URL      - Upstream service URL (required)
  QUOTAGATE_DATABASE_DSN      - Database path (default: quotagate.db)
  QUOTAGATE_SERVER_PORT       - Server port (default: 8080)
  QUOTAGATE_QUOTA_FREE_LIMIT  - Metered calls per period (default: 5)
  QUOTAGATE_QUOTA_FAIL_OPEN   - Admit on store failure (default: true)
  QUOTAGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  quotagate serve
  quotagate serve --config /etc/quotagate/config.yaml
  quotagate serve --hot-reload=false

  # Container (env vars only):
  QUOTAGATE_UPSTREAM_URL=https://api.example.com quotagate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}
	hasEnvConfig := os.Getenv("QUOTAGATE_UPSTREAM_URL") != ""

	if !hasConfigFile && !hasEnvConfig {
		fmt.Printf("No configuration found.\n\n")
		fmt.Printf("Option 1: Create %s\n", cfgFile)
		fmt.Println("Option 2: Set QUOTAGATE_UPSTREAM_URL environment variable")
		fmt.Println()
		fmt.Println("Example (env vars):")
		fmt.Println("  QUOTAGATE_UPSTREAM_URL=https://api.example.com quotagate serve")
		return nil
	}

	var a *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with a config file.
		a, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}
		a, err = bootstrap.New(cfg)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Blocks until shutdown.
	return a.Run()
}
