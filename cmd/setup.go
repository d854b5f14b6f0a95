package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/config"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
)

var flagSetupAccessible bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&flagSetupAccessible, "accessible", false, "Plain prompts instead of the interactive form")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("  Welcome to promptroute!")
	fmt.Println()
	if res, err := pipeline.Load(dataDir(cfg), nil); err == nil && len(res.Records) > 0 {
		fmt.Printf("  Found %s recorded calls in %s\n\n",
			formatNumber(int64(len(res.Records))), dataDir(cfg))
	}

	var (
		apiKey   string
		strategy = cfg.Routing.Strategy
		defModel = cfg.Routing.DefaultModel
		days     = cfg.General.DefaultDays
		budget   string
	)
	if cfg.Budget.MonthlyUSD != nil {
		budget = strconv.FormatFloat(*cfg.Budget.MonthlyUSD, 'f', -1, 64)
	}

	keyDesc := "Used for every completion. Leave blank to keep the current key."
	if existing := config.GetAPIKey(cfg); existing != "" {
		keyDesc = fmt.Sprintf("Current: %s. Leave blank to keep it.", maskAPIKey(existing))
	}

	strategies := make([]huh.Option[string], 0, len(model.SelectableStrategies))
	for _, s := range model.SelectableStrategies {
		strategies = append(strategies, huh.NewOption(string(s), string(s)))
	}

	set := cfg.ModelSet()
	models := make([]huh.Option[string], 0, len(set))
	for _, id := range sortedKeys(set) {
		models = append(models, huh.NewOption(fmt.Sprintf("%s  ($%.5f/1K)", id, set[id].CostPer1KTokens), id))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenRouter API key").
				Description(keyDesc).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Routing strategy").
				Options(strategies...).
				Value(&strategy),
			huh.NewSelect[string]().
				Title("Default model").
				Description("Used when a routed model fails or is unknown.").
				Options(models...).
				Value(&defModel),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Default time range").
				Options(
					huh.NewOption("7 days", 7),
					huh.NewOption("30 days", 30),
					huh.NewOption("90 days", 90),
				).
				Value(&days),
			huh.NewInput().
				Title("Monthly budget (USD)").
				Description("Leave blank for none.").
				Validate(validateBudget).
				Value(&budget),
		),
	).WithAccessible(flagSetupAccessible)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup canceled; nothing saved.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}

	if k := strings.TrimSpace(apiKey); k != "" {
		cfg.Gateway.APIKey = k
	}
	cfg.Routing.Strategy = strategy
	cfg.Routing.DefaultModel = defModel
	cfg.General.DefaultDays = days
	cfg.Budget.MonthlyUSD = nil
	if b := strings.TrimSpace(budget); b != "" {
		v, _ := strconv.ParseFloat(b, 64)
		cfg.Budget.MonthlyUSD = &v
	}

	if err := config.SaveTo(path, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", path)
	fmt.Println("  Run `promptroute setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}

func validateBudget(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return errors.New("enter a non-negative number")
	}
	return nil
}

func sortedKeys(m map[string]config.ModelConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}

func formatNumber(n int64) string {
	return cli.FormatNumber(n)
}
