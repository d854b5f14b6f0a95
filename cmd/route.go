package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/model"
)

var (
	flagRouteSystem  string
	flagRouteExplain bool
	flagRouteJSON    bool
)

var routeCmd = &cobra.Command{
	Use:   "route [prompt...]",
	Short: "Route a prompt to the best-fit model and print the answer",
	Long:  "Route a prompt to the best-fit model. With no arguments, or \"-\", the prompt is read from stdin.",
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&flagRouteSystem, "system", "", "System message sent before the prompt")
	routeCmd.Flags().BoolVar(&flagRouteExplain, "explain", false, "Print the routing explanation")
	routeCmd.Flags().BoolVar(&flagRouteJSON, "json", false, "Print the call record as JSON")
	rootCmd.AddCommand(routeCmd)
}

// readPrompt joins args, or reads stdin when there are none.
func readPrompt(args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func runRoute(_ *cobra.Command, args []string) error {
	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{engine: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var messages []model.Message
	if flagRouteSystem != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: flagRouteSystem})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := a.engine.Route(ctx, messages, flagModel)
	if err != nil {
		if errors.Is(err, gateway.ErrAuth) {
			return fmt.Errorf("%w; check the key with `promptroute status`", err)
		}
		return err
	}

	if flagRouteJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Text   string           `json:"text"`
			Record model.CallRecord `json:"record"`
		}{res.Text, res.Record})
	}

	fmt.Println(res.Text)

	if flagQuiet {
		return nil
	}
	rec := res.Record
	fmt.Fprintln(os.Stderr)
	if flagRouteExplain {
		for _, line := range strings.Split(rec.Decision.Explanation, "\n") {
			fmt.Fprintln(os.Stderr, cli.RenderMuted("  "+line))
		}
	}
	fmt.Fprintln(os.Stderr, cli.RenderMuted(fmt.Sprintf("  %s · %s/%s · %s tokens · %s · %s",
		rec.ModelID,
		rec.Classification.Type,
		rec.Classification.Bucket,
		cli.FormatTokens(rec.TokenCount),
		cli.FormatCost(rec.Cost),
		cli.FormatLatency(rec.Usage.LatencySeconds),
	)))
	return nil
}
