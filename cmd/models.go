package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var (
	flagModelsUsage    bool
	flagModelsSort     string
	flagModelsStrength string
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List catalog models, or per-model usage with --usage",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&flagModelsUsage, "usage", "u", false, "Show model usage from the call logs")
	modelsCmd.Flags().StringVar(&flagModelsSort, "sort", "cost", "Catalog order: cost, price-desc, context")
	modelsCmd.Flags().StringVar(&flagModelsStrength, "strength", "", "Only models listing this strength")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(_ *cobra.Command, _ []string) error {
	if flagModelsUsage {
		return runModelUsage()
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	cat := a.holder.Current()

	var ordered []model.ModelDescriptor
	switch flagModelsSort {
	case "cost", "":
		ordered = cat.CheapestFirst()
	case "price-desc":
		ordered = cat.MostExpensiveFirst()
	case "context":
		ordered = cat.HighestContextFirst()
	default:
		return fmt.Errorf("unknown sort %q (want cost, price-desc, or context)", flagModelsSort)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("MODEL CATALOG  %d models", cat.Len())))
	fmt.Println()

	rows := make([][]string, 0, len(ordered))
	for _, m := range ordered {
		if flagModelsStrength != "" && !m.HasStrength(flagModelsStrength) {
			continue
		}
		name := m.ID
		if m.ID == cat.DefaultModel() {
			name += " (default)"
		}
		rows = append(rows, []string{
			name,
			m.Provider,
			fmt.Sprintf("$%.5f", m.CostPer1KTokens),
			cli.FormatNumber(int64(m.MaxTokens)),
			cli.FormatTokens(int64(m.ContextLength)),
			fmt.Sprintf("%.1f", m.Temperature),
			strings.Join(m.Strengths, ", "),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Model", "Provider", "$/1K", "Max Out", "Context", "Temp", "Strengths"},
		Rows:    rows,
	}))

	return nil
}

func runModelUsage() error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		fmt.Println("\n  No calls recorded yet.")
		return nil
	}

	filtered, since, until := applyFilters(result.Records)
	models := pipeline.AggregateModels(filtered, since, until)

	if len(models) == 0 {
		fmt.Println("\n  No model data in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("MODEL USAGE  Last %dd", flagDays)))
	fmt.Println()

	rows := make([][]string, 0, len(models))
	for _, ms := range models {
		rows = append(rows, []string{
			ms.Model,
			cli.FormatNumber(int64(ms.Calls)),
			cli.FormatNumber(int64(ms.Failed)),
			cli.FormatTokens(ms.TotalTokens),
			cli.FormatLatency(ms.AvgLatency),
			cli.FormatCost(ms.Cost),
			fmt.Sprintf("%.1f%%", ms.SharePercent),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Model", "Calls", "Failed", "Tokens", "Avg Latency", "Cost", "Share"},
		Rows:    rows,
	}))

	return nil
}
