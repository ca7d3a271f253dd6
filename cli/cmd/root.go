package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haulwatch/haulwatch-stack/cli/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hwctl",
	Short: "HaulWatch Stack CLI",
	Long: `hwctl is the command-line interface for the HaulWatch webhook stack.

Replay recorded provider deliveries, generate synthetic fleet traffic,
manage the location event schema and switch between deployments.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute runs the root command. Interrupts cancel the command context so
// long replays stop between deliveries.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.hwctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("webhook-url", "", "webhook service base URL (overrides profile, env HWCTL_WEBHOOK_URL)")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL DSN (overrides profile, env HWCTL_DATABASE_URL)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// activeProfile resolves the profile for cmd. Flags win over environment
// variables, which win over the stored profile.
func activeProfile(cmd *cobra.Command) *config.Profile {
	if cfg == nil {
		cfg = config.Default()
	}

	name, _ := cmd.Flags().GetString("profile")
	p := &config.Profile{}
	if stored, err := cfg.GetProfile(name); err == nil {
		*p = *stored
	}

	if v := os.Getenv("HWCTL_WEBHOOK_URL"); v != "" {
		p.WebhookURL = v
	}
	if v := os.Getenv("HWCTL_DATABASE_URL"); v != "" {
		p.DatabaseURL = v
	}
	if v, _ := cmd.Flags().GetString("webhook-url"); v != "" {
		p.WebhookURL = v
	}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		p.DatabaseURL = v
	}

	if p.WebhookURL == "" {
		p.WebhookURL = config.DefaultWebhookURL
	}
	return p
}

func requireDatabase(cmd *cobra.Command) (string, error) {
	dsn := activeProfile(cmd).DatabaseURL
	if dsn == "" {
		return "", fmt.Errorf("no database configured: use --database-url or 'hwctl profile set --database-url'")
	}
	return dsn, nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "table", "json":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table or json)", format)
	}
}
