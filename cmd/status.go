package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/config"
	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the API key with a minimal completion",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	apiKey := config.GetAPIKey(a.cfg)
	if apiKey == "" {
		fmt.Println()
		fmt.Println("  No API key configured.")
		fmt.Println()
		fmt.Println("  Configure it with one of:")
		fmt.Println("    promptroute setup                               (interactive)")
		fmt.Printf("    %s=sk-or-... promptroute status     (one-shot)\n", config.APIKeyEnv)
		fmt.Println("    a .env file in the working directory")
		fmt.Println()
		return nil
	}

	target := flagModel
	if target == "" || !a.holder.Current().Has(target) {
		target = a.holder.Current().DefaultModel()
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Sending a test completion to %s...\n", target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	comp, err := a.gatewayClient().Complete(ctx, gateway.Request{
		Model:       target,
		Messages:    []model.Message{{Role: model.RoleUser, Content: "Hello"}},
		Temperature: 0,
		MaxTokens:   5,
	})

	fmt.Println()
	fmt.Println(cli.RenderTitle("API STATUS"))
	fmt.Println()

	pairs := [][2]string{
		{"Endpoint", a.cfg.Gateway.BaseURL},
		{"API key", maskAPIKey(apiKey)},
		{"Model", target},
		{"Latency", cli.FormatLatency(comp.Latency.Seconds())},
	}
	if err != nil {
		pairs = append(pairs, [2]string{"Result", cli.RenderStatus(false, gateway.KindOf(err))})
		fmt.Print(cli.RenderKeyValues(pairs))
		fmt.Println()
		switch {
		case errors.Is(err, gateway.ErrAuth):
			return errors.New("API key rejected; run `promptroute setup` to replace it")
		case errors.Is(err, gateway.ErrRateLimited):
			return errors.New("rate limited upstream; try again in a minute")
		default:
			return fmt.Errorf("test completion failed: %w", err)
		}
	}

	pairs = append(pairs,
		[2]string{"Tokens", cli.FormatNumber(comp.Usage.Normalized().TotalTokens)},
		[2]string{"Result", cli.RenderStatus(true, "ok")},
	)
	fmt.Print(cli.RenderKeyValues(pairs))
	fmt.Println()
	return nil
}
