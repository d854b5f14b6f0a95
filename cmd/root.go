// Package cmd implements the promptroute CLI commands.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var (
	flagConfig   string
	flagDays     int
	flagModel    string
	flagStrategy string
	flagDataDir  string
	flagQuiet    bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "promptroute",
	Short: "Prompt-aware model router",
	Long:  "Classify prompts, route them to the best-fit model, and track what every call cost.",
	RunE:  runSummary,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("days") {
			if cfg, _, err := loadConfig(); err == nil && cfg.General.DefaultDays > 0 {
				flagDays = cfg.General.DefaultDays
			}
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file (default $XDG_CONFIG_HOME/promptroute/config.toml)")
	rootCmd.PersistentFlags().IntVarP(&flagDays, "days", "n", 30, "Time window in days")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Filter to model (substring match); forces the model for route/classify")
	rootCmd.PersistentFlags().StringVarP(&flagStrategy, "strategy", "s", "", "Routing strategy: balanced, cost, speed, quality")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Directory holding call logs and the cost ledger")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override the configured log level")
}

// loadData reads every call log in the data directory.
func loadData() (*pipeline.LoadResult, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dir := dataDir(cfg)

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning call logs...\n")
	}

	progressFn := func(current, total int) {
		if flagQuiet {
			return
		}
		fmt.Fprintf(os.Stderr, "\r  Reading %s", cli.RenderProgressBar(current, total, 20))
	}

	result, err := pipeline.Load(dir, progressFn)
	if err != nil {
		return nil, err
	}

	if !flagQuiet && result.TotalFiles > 0 {
		fmt.Fprintf(os.Stderr, "\r  Loaded %s calls from %d log files    \n",
			cli.FormatNumber(int64(len(result.Records))),
			result.ParsedFiles,
		)
	}
	if !flagQuiet && result.ParseErrors > 0 {
		fmt.Fprintln(os.Stderr, cli.RenderWarning(fmt.Sprintf("%d malformed log lines skipped", result.ParseErrors)))
	}

	return result, nil
}

// applyFilters returns filtered records and the computed time range.
func applyFilters(records []model.CallRecord) ([]model.CallRecord, time.Time, time.Time) {
	now := time.Now()
	since := now.AddDate(0, 0, -flagDays)
	until := now.Add(time.Second)

	filtered := records
	if flagModel != "" {
		filtered = pipeline.FilterByModel(filtered, flagModel)
	}

	return filtered, since, until
}
