package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/haulwatch/haulwatch-stack/cli/internal/client"
	"github.com/haulwatch/haulwatch-stack/cli/internal/replay"
	"github.com/haulwatch/haulwatch-stack/cli/pkg/output"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded deliveries against the webhook endpoint",
	Long: `Replay reads provider payloads from a file (a JSON array or one JSON
document per line) and posts them to the webhook endpoint in order.

Example:
  hwctl replay --file payloads.json --interval 5s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		interval, _ := cmd.Flags().GetDuration("interval")

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()

		payloads, err := replay.LoadPayloads(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if len(payloads) == 0 {
			output.Warn("No payloads in %s", file)
			return nil
		}

		p := activeProfile(cmd)
		output.Info("Replaying %d payloads to %s", len(payloads), p.WebhookURL)

		r := &replay.Replayer{Sender: client.NewWebhookClient(p.WebhookURL), Interval: interval}
		summary, err := r.Run(cmd.Context(), payloads, func(o replay.Outcome) {
			if format == "table" {
				reportOutcome(o)
			}
		})

		if format == "json" {
			if jerr := output.JSON(summary); jerr != nil {
				return jerr
			}
		} else {
			printSummary(summary)
		}
		return err
	},
}

func reportOutcome(o replay.Outcome) {
	n := o.Index + 1
	switch {
	case o.Err != nil:
		output.Error("#%d failed: %v", n, o.Err)
	case o.Result.Accepted() && o.Result.Duplicate:
		output.Warn("#%d duplicate %s", n, o.Result.ID)
	case o.Result.Accepted():
		output.Success("#%d accepted %s", n, o.Result.ID)
	default:
		msg := fmt.Sprintf("#%d %d %s", n, o.Result.StatusCode, o.Result.Error)
		if o.Result.Detail != "" {
			msg += ": " + o.Result.Detail
		}
		output.Error("%s", msg)
	}
}

func printSummary(s replay.Summary) {
	table := output.NewTable("SENT", "ACCEPTED", "DUPLICATES", "REJECTED", "FAILED")
	table.AddRow(
		strconv.Itoa(s.Sent),
		strconv.Itoa(s.Accepted),
		strconv.Itoa(s.Duplicates),
		strconv.Itoa(s.Rejected),
		strconv.Itoa(s.Failed),
	)
	table.Render()
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringP("file", "f", "", "payload file (JSON array or NDJSON)")
	replayCmd.Flags().Duration("interval", 0, "delay between deliveries (e.g. 5s)")
}
