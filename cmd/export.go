package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
)

var flagExportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSON cost report (gzip when the path ends in .gz)",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportOutput, "output", "o", "", "Report path, or - for stdout (default <data-dir>/cost_report_<date>.json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{ledger: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if flagExportOutput == "-" {
		rep, err := a.ledger.Report(flagDays)
		if err != nil {
			return err
		}
		return rep.WriteJSON(os.Stdout)
	}

	path := flagExportOutput
	if path == "" {
		path = filepath.Join(a.dataDir, fmt.Sprintf("cost_report_%s.json", time.Now().Format("20060102_150405")))
	}
	if err := a.ledger.ExportReport(path, flagDays); err != nil {
		return err
	}

	fmt.Printf("  %s Exported cost report to %s\n", cli.RenderStatus(true, "✓"), path)
	return nil
}
