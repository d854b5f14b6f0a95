package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the cost ledger database from the call logs",
	RunE:  runRebuild,
}

var flagRebuildForce bool

func init() {
	rebuildCmd.Flags().BoolVar(&flagRebuildForce, "force", false, "Rebuild even if some call logs could not be read")
	rootCmd.AddCommand(rebuildCmd)
}

// checkReplayComplete refuses to replace the ledger from a partial replay.
func checkReplayComplete(result *pipeline.LoadResult, force bool) error {
	if result.FileErrors == 0 || force {
		return nil
	}
	return fmt.Errorf("%d of %d call logs could not be read; ledger left unchanged (use --force to rebuild anyway)",
		result.FileErrors, result.TotalFiles)
}

func runRebuild(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if err := checkReplayComplete(result, flagRebuildForce); err != nil {
		return err
	}

	a, err := newApp(appOptions{ledger: true})
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.ledger.Rebuild(result.Records)
	if err != nil {
		return err
	}

	fmt.Printf("  %s Rebuilt ledger: %s entries from %s call records\n",
		cli.RenderStatus(true, "✓"),
		cli.FormatNumber(int64(n)),
		cli.FormatNumber(int64(len(result.Records))),
	)
	return nil
}
