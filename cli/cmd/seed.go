package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/haulwatch/haulwatch-stack/cli/internal/client"
	"github.com/haulwatch/haulwatch-stack/cli/internal/replay"
	"github.com/haulwatch/haulwatch-stack/cli/internal/seeder"
	"github.com/haulwatch/haulwatch-stack/cli/pkg/output"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic fleet deliveries",
	Long: `Generate realistic provider payloads for a simulated fleet and post them
to the webhook endpoint. With --dry-run the payloads are printed as a JSON
array instead, which 'hwctl replay' can read back.

Examples:
  hwctl seed --count 500
  hwctl seed --count 20 --types user.entered_geofence,user.exited_geofence
  hwctl seed --count 100 --seed 7 --dry-run > payloads.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		types, _ := cmd.Flags().GetStringSlice("types")
		users, _ := cmd.Flags().GetInt("users")
		since, _ := cmd.Flags().GetDuration("since")
		seed, _ := cmd.Flags().GetInt64("seed")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if count <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		opts := seeder.DefaultOptions()
		if len(types) > 0 {
			opts.EventTypes = types
		}
		opts.Users = users
		opts.Start = opts.End.Add(-since)

		gen, err := seeder.New(seed, opts)
		if err != nil {
			return err
		}
		payloads, err := gen.Generate(count)
		if err != nil {
			return err
		}

		if dryRun {
			data, err := json.MarshalIndent(payloads, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		p := activeProfile(cmd)
		output.Info("Seeding %d events to %s (seed %d)", count, p.WebhookURL, seed)

		r := &replay.Replayer{Sender: client.NewWebhookClient(p.WebhookURL), Interval: interval}
		summary, runErr := r.Run(cmd.Context(), payloads, func(o replay.Outcome) {
			if o.Err != nil || !o.Result.Accepted() {
				reportOutcome(o)
			}
		})

		if format == "json" {
			if err := output.JSON(summary); err != nil {
				return err
			}
		} else {
			printSummary(summary)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntP("count", "n", 100, "number of events to generate")
	seedCmd.Flags().Duration("interval", 0, "delay between deliveries")
	seedCmd.Flags().StringSlice("types", nil, "event types to draw from (default: geofence and trip events)")
	seedCmd.Flags().Int("users", 25, "number of simulated drivers")
	seedCmd.Flags().Duration("since", 24*time.Hour, "spread event timestamps over this window ending now")
	seedCmd.Flags().Int64("seed", 0, "random seed (default: time based)")
	seedCmd.Flags().Bool("dry-run", false, "print payloads instead of sending them")
}
