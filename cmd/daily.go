package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily call and cost table",
	RunE:  runDaily,
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		fmt.Println("\n  No calls recorded yet.")
		return nil
	}

	filtered, since, until := applyFilters(result.Records)
	days := pipeline.AggregateDays(filtered, since, until)

	if len(days) == 0 {
		fmt.Println("\n  No data for the selected period.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("DAILY USAGE  Last %dd", flagDays)))
	fmt.Println()

	rows := make([][]string, 0, len(days))
	costs := make([]float64, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{
			d.Date.Format("2006-01-02"),
			d.Date.Format("Mon"),
			cli.FormatNumber(int64(d.Calls)),
			cli.FormatNumber(int64(d.Failed)),
			cli.FormatTokens(d.TotalTokens),
			cli.FormatCost(d.Cost),
		})
		costs = append(costs, d.Cost)
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Date", "Day", "Calls", "Failed", "Tokens", "Cost"},
		Rows:    rows,
	}))

	// Days are newest first; the sparkline reads left to right.
	for i, j := 0, len(costs)-1; i < j; i, j = i+1, j-1 {
		costs[i], costs[j] = costs[j], costs[i]
	}
	fmt.Printf("  Cost trend  %s\n\n", cli.RenderSparkline(costs))

	return nil
}
