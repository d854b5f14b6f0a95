package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/model"
)

var (
	flagCostsScope string
	flagCostsKey   string
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Cost ledger rollup by session, day, or all time",
	RunE:  runCosts,
}

func init() {
	costsCmd.Flags().StringVar(&flagCostsScope, "scope", "all_time", "Rollup scope: session, day, all_time")
	costsCmd.Flags().StringVar(&flagCostsKey, "key", "", "Session id or YYYY-MM-DD day (default: today)")
	rootCmd.AddCommand(costsCmd)
}

func runCosts(_ *cobra.Command, _ []string) error {
	kind, err := ledger.ParseScope(flagCostsScope)
	if err != nil {
		return err
	}
	if kind == ledger.ScopeSession && flagCostsKey == "" {
		return fmt.Errorf("--scope session needs --key <session id>")
	}

	a, err := newApp(appOptions{ledger: true})
	if err != nil {
		return err
	}
	defer a.Close()

	agg, err := a.ledger.Summary(ledger.Scope{Kind: kind, Key: flagCostsKey})
	if err != nil {
		return err
	}

	title := "COSTS  All time"
	switch kind {
	case ledger.ScopeSession:
		title = "COSTS  Session " + cli.ShortID(agg.Key)
	case ledger.ScopeDay:
		title = "COSTS  " + agg.Key
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(title))
	fmt.Println()

	if agg.Calls == 0 {
		fmt.Println("  No ledger entries for this scope.")
		fmt.Println("  Run `promptroute rebuild` if the call logs predate the ledger.")
		fmt.Println()
		return nil
	}

	fmt.Print(renderLedgerModels(agg))

	days, err := a.ledger.Trends(flagDays)
	if err != nil {
		return err
	}
	trend := make([]float64, len(days))
	for i, d := range days {
		trend[i] = d.Cost
	}
	fmt.Printf("  Last %dd  %s\n\n", flagDays, cli.RenderSparkline(trend))

	if at, err := a.ledger.RebuiltAt(); err == nil && !at.IsZero() {
		fmt.Println(cli.RenderMuted("  Ledger rebuilt " + at.Local().Format("2006-01-02 15:04")))
		fmt.Println()
	}

	if b := a.cfg.Budget.MonthlyUSD; b != nil && *b > 0 {
		bs, err := a.ledger.Budget(*b)
		if err != nil {
			return err
		}
		fmt.Print(renderBudget(bs))
	}

	return nil
}

func renderLedgerModels(agg model.LedgerAggregate) string {
	rows := make([][]string, 0, len(agg.Models)+2)
	for _, m := range agg.Models {
		share := ""
		if agg.TotalCost > 0 {
			share = fmt.Sprintf("%.1f%%", m.Cost/agg.TotalCost*100)
		}
		rows = append(rows, []string{
			m.Model,
			cli.FormatNumber(int64(m.Calls)),
			cli.FormatTokens(m.Tokens),
			cli.FormatCost(m.Cost),
			share,
		})
	}
	rows = append(rows, cli.SeparatorRow)
	rows = append(rows, []string{
		"TOTAL",
		cli.FormatNumber(int64(agg.Calls)),
		cli.FormatTokens(agg.TotalTokens),
		cli.FormatCost(agg.TotalCost),
		"",
	})

	return cli.RenderTable(cli.Table{
		Title:   "By Model",
		Headers: []string{"Model", "Calls", "Tokens", "Cost", "Share"},
		Rows:    rows,
	})
}

func renderBudget(bs model.BudgetStats) string {
	rows := [][]string{
		{"Monthly budget", cli.FormatCost(bs.MonthlyBudget)},
		{"Spent (" + time.Now().Format("Jan") + ")", cli.FormatCost(bs.CurrentSpend)},
		{"Burn rate", cli.FormatCost(bs.DailyBurnRate) + "/day"},
		{"Projected", cli.FormatCost(bs.ProjectedMonthly)},
		{"Used", fmt.Sprintf("%.1f%%", bs.BudgetUsedPercent)},
		{"Days left", cli.FormatNumber(int64(bs.DaysRemaining))},
	}
	out := cli.RenderTable(cli.Table{
		Title:   "Budget",
		Headers: []string{"", "Value"},
		Rows:    rows,
	})
	if bs.ProjectedMonthly > bs.MonthlyBudget {
		out += cli.RenderWarning("projected spend exceeds the monthly budget") + "\n\n"
	}
	return out
}
