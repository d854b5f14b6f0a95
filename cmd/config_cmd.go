package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", path)
	if _, err := os.Stat(path); err == nil {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Default days:  %d\n", cfg.General.DefaultDays)
	fmt.Printf("    Data dir:      %s\n", dataDir(cfg))
	fmt.Println()

	fmt.Println("  [Gateway]")
	fmt.Printf("    Base URL:      %s\n", cfg.Gateway.BaseURL)
	apiKey := config.GetAPIKey(cfg)
	if apiKey != "" {
		src := "config"
		if os.Getenv(config.APIKeyEnv) != "" {
			src = config.APIKeyEnv
		}
		fmt.Printf("    API key:       %s (%s)\n", maskAPIKey(apiKey), src)
	} else {
		fmt.Println("    API key:       not configured")
	}
	fmt.Printf("    Timeout:       %ds\n", cfg.Gateway.TimeoutSeconds)
	if cfg.Gateway.RequestsPerMinute > 0 {
		fmt.Printf("    Rate limit:    %d/min\n", cfg.Gateway.RequestsPerMinute)
	}
	fmt.Println()

	fmt.Println("  [Routing]")
	fmt.Printf("    Strategy:      %s\n", selectedStrategy(cfg))
	fmt.Printf("    Default model: %s\n", cfg.Routing.DefaultModel)
	fmt.Printf("    Token ceiling: %d\n", cfg.Routing.MaxTokensCeiling)
	if cfg.Routing.CatalogFile != "" {
		fmt.Printf("    Catalog file:  %s\n", cfg.Routing.CatalogFile)
	}
	fmt.Println()

	set := cfg.ModelSet()
	ids := sortedKeys(set)
	fmt.Printf("  [Models] %d configured\n", len(ids))
	for _, id := range ids {
		fmt.Printf("    %-32s $%.5f/1K\n", id, set[id].CostPer1KTokens)
	}
	fmt.Println()

	fmt.Println("  [Logging]")
	fmt.Printf("    Level/format:  %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.File != "" {
		fmt.Printf("    File:          %s\n", cfg.Logging.File)
	}
	fmt.Printf("    Rotation:      %dMB x %d, compress %s\n",
		cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cli.FormatBool(cfg.Logging.Compress))
	fmt.Println()

	fmt.Println("  [Budget]")
	if cfg.Budget.MonthlyUSD != nil {
		fmt.Printf("    Monthly budget: $%.2f\n", *cfg.Budget.MonthlyUSD)
	} else {
		fmt.Println("    Monthly budget: not set")
	}
	fmt.Println()

	fmt.Println("  Run `promptroute setup` to reconfigure.")
	return nil
}
