package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Routing summary: calls, errors, tokens, and costs",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}

	if len(result.Records) == 0 {
		fmt.Println("\n  No calls recorded yet.")
		fmt.Println("  Try: promptroute route \"What is the capital of France?\"")
		return nil
	}

	filtered, since, until := applyFilters(result.Records)
	stats := pipeline.Aggregate(filtered, since, until)

	if stats.TotalCalls == 0 {
		fmt.Println("\n  No calls found in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("ROUTING SUMMARY  Last %dd", flagDays)))
	fmt.Println()

	rows := [][]string{
		{"Calls", cli.FormatNumber(int64(stats.TotalCalls))},
		{"Successful", cli.FormatNumber(int64(stats.SuccessfulCalls))},
		{"Failed", cli.FormatNumber(int64(stats.FailedCalls))},
		{"Error Rate", cli.FormatPercent(stats.ErrorRate)},
		{"Retries", cli.FormatNumber(int64(stats.Retries))},
		{"Fallbacks", cli.FormatNumber(int64(stats.Fallbacks))},
		cli.SeparatorRow,
		{"Prompts", cli.FormatNumber(int64(stats.Prompts))},
		{"Sessions", cli.FormatNumber(int64(stats.Sessions))},
		{"Avg Latency", cli.FormatLatency(stats.AvgLatency)},
		cli.SeparatorRow,
		{"Prompt Tokens", cli.FormatTokens(stats.PromptTokens)},
		{"Completion Tokens", cli.FormatTokens(stats.CompletionTokens)},
		{"Total Tokens", cli.FormatTokens(stats.TotalTokens)},
		{"Cost", cli.FormatCost(stats.TotalCost)},
		cli.SeparatorRow,
		{"Cost/day", cli.FormatCost(stats.CostPerDay)},
		{"Tokens/day", cli.FormatTokens(stats.TokensPerDay)},
		{"Calls/day", fmt.Sprintf("%.1f", stats.CallsPerDay)},
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}))

	fmt.Print(renderBreakdown("By Prompt Type", "Type", pipeline.AggregateTypes(filtered, since, until)))
	fmt.Print(renderBreakdown("By Strategy", "Strategy", pipeline.AggregateStrategies(filtered, since, until)))
	fmt.Print(renderBreakdown("By Length", "Length", pipeline.AggregateBuckets(filtered, since, until)))

	if result.FileErrors > 0 {
		fmt.Fprintf(os.Stderr, "\n  %d log files could not be read\n", result.FileErrors)
	}

	return nil
}

func renderBreakdown(title, key string, stats []model.BreakdownStats) string {
	if len(stats) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Key,
			cli.FormatNumber(int64(s.Calls)),
			cli.FormatCost(s.Cost),
			fmt.Sprintf("%.1f%%", s.SharePercent),
		})
	}
	return cli.RenderTable(cli.Table{
		Title:   title,
		Headers: []string{key, "Calls", "Cost", "Share"},
		Rows:    rows,
	})
}
