package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/router"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [prompt...]",
	Short: "Show how a prompt would be classified and routed, without calling a model",
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(_ *cobra.Command, args []string) error {
	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	// Explain never reaches the gateway, so a nil completer is fine here.
	engine := router.New(nil, a.classifier, a.resolver, a.holder, router.Options{
		Strategy:         selectedStrategy(a.cfg),
		MaxTokensCeiling: a.cfg.Routing.MaxTokensCeiling,
		Logger:           a.logger,
	})
	p := engine.Explain(prompt, flagModel)
	cls := p.Classification

	fmt.Println()
	fmt.Println(cli.RenderTitle("PROMPT CLASSIFICATION"))
	fmt.Println()

	fmt.Print(cli.RenderKeyValues([][2]string{
		{"Type", string(cls.Type)},
		{"Length", string(cls.Bucket)},
		{"Tokens (est)", cli.FormatNumber(int64(cls.TokenEstimate))},
		{"Reason", cls.DetectionReason},
	}))
	fmt.Println()

	matchRows := make([][]string, 0, len(model.PromptTypes))
	for _, t := range model.PromptTypes {
		matchRows = append(matchRows, []string{string(t), cli.FormatNumber(int64(cls.MatchedPatterns[t]))})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Pattern Matches",
		Headers: []string{"Type", "Matches"},
		Rows:    matchRows,
	}))

	if len(p.Decision.Candidates) > 0 {
		strategies := make([]string, 0, len(p.Decision.Candidates))
		for s := range p.Decision.Candidates {
			strategies = append(strategies, string(s))
		}
		sort.Strings(strategies)

		rows := make([][]string, 0, len(strategies))
		for _, s := range strategies {
			chosen := ""
			if model.Strategy(s) == p.Decision.ChosenStrategy {
				chosen = "*"
			}
			rows = append(rows, []string{s, p.Decision.Candidates[model.Strategy(s)], chosen})
		}
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Candidates",
			Headers: []string{"Strategy", "Model", ""},
			Rows:    rows,
		}))
	}

	fmt.Println("  " + p.Decision.Explanation)
	fmt.Println()
	return nil
}
