package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/promptroute/internal/cli"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
	"github.com/theirongolddev/promptroute/internal/recorder"
)

var (
	flagCallsLimit   int
	flagCallsSession string
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Recent calls, or every call of one session",
	RunE:  runCalls,
}

func init() {
	callsCmd.Flags().IntVarP(&flagCallsLimit, "limit", "l", 20, "Number of calls to show")
	callsCmd.Flags().StringVar(&flagCallsSession, "session", "", "Show the calls of this session id, oldest first")
	rootCmd.AddCommand(callsCmd)
}

func runCalls(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		fmt.Println("\n  No calls recorded yet.")
		return nil
	}

	var (
		records []model.CallRecord
		title   string
	)
	if flagCallsSession != "" {
		records = recorder.BySession(result.Records, flagCallsSession)
		title = fmt.Sprintf("SESSION %s  (%d calls)", cli.ShortID(flagCallsSession), len(records))
	} else {
		filtered, since, until := applyFilters(result.Records)
		records = recorder.Recent(pipeline.FilterByTime(filtered, since, until), flagCallsLimit)
		title = fmt.Sprintf("RECENT CALLS  Last %dd (showing %d)", flagDays, len(records))
	}

	if len(records) == 0 {
		fmt.Println("\n  No matching calls.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(title))
	fmt.Println()

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := cli.RenderStatus(r.Success, "ok")
		if !r.Success {
			status = cli.RenderStatus(false, r.ErrorKind)
		}
		if r.FallbackTo != "" {
			status = cli.RenderMuted("-> " + r.FallbackTo)
		}
		rows = append(rows, []string{
			r.Timestamp.Local().Format("Jan 02 15:04:05"),
			r.ModelID,
			string(r.Classification.Type) + "/" + string(r.Classification.Bucket),
			string(r.Strategy()),
			cli.FormatTokens(r.TokenCount),
			cli.FormatCost(r.Cost),
			status,
			model.Truncate(r.Query, 32),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Time", "Model", "Class", "Strategy", "Tokens", "Cost", "Status", "Query"},
		Rows:    rows,
	}))

	return nil
}
