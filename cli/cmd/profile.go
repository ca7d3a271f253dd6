package cmd

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/haulwatch/haulwatch-stack/cli/internal/config"
	"github.com/haulwatch/haulwatch-stack/cli/pkg/output"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
	Long:  "Store webhook and database endpoints for each deployment you work with",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		webhookURL, _ := cmd.Flags().GetString("webhook-url")
		databaseURL, _ := cmd.Flags().GetString("database-url")

		p := &config.Profile{WebhookURL: config.DefaultWebhookURL}
		if existing, err := cfg.GetProfile(name); err == nil {
			*p = *existing
		}
		if webhookURL != "" {
			p.WebhookURL = webhookURL
		}
		if databaseURL != "" {
			p.DatabaseURL = databaseURL
		}

		if err := cfg.SaveProfile(name, p); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		output.Success("Profile '%s' saved to %s", name, cfg.Path())
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := cfg.GetProfile(args[0])
		if err != nil {
			return err
		}
		if err := cfg.SaveProfile(args[0], p); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		output.Success("Now using profile '%s'", args[0])
		return nil
	},
}

type profileView struct {
	Name        string `json:"name"`
	Current     bool   `json:"current"`
	WebhookURL  string `json:"webhook_url"`
	DatabaseURL string `json:"database_url,omitempty"`
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		views := make([]profileView, 0, len(names))
		for _, name := range names {
			p := cfg.Profiles[name]
			views = append(views, profileView{
				Name:        name,
				Current:     name == cfg.CurrentProfile,
				WebhookURL:  p.WebhookURL,
				DatabaseURL: redactDSN(p.DatabaseURL),
			})
		}

		if format == "json" {
			return output.JSON(views)
		}

		t := output.NewTable("", "NAME", "WEBHOOK URL", "DATABASE")
		for _, v := range views {
			marker := ""
			if v.Current {
				marker = "*"
			}
			t.AddRow(marker, v.Name, v.WebhookURL, v.DatabaseURL)
		}
		t.Render()
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		output.Success("Profile '%s' removed", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileUseCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileRemoveCmd)
}

// redactDSN hides the password of a URL-form DSN.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return dsn
	}
	return u.Redacted()
}
