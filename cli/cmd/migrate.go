package cmd

import (
	"fmt"

	"github.com/haulwatch/haulwatch-stack/cli/pkg/output"
	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the location event schema",
	Long:  "Apply, roll back and inspect PostgreSQL schema migrations for the webhook sink",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := requireDatabase(cmd)
		if err != nil {
			return err
		}
		if err := database.MigrateUp(dsn); err != nil {
			return err
		}
		return printVersion(cmd, dsn)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long:  "Roll back the given number of migrations, or all of them with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		all, _ := cmd.Flags().GetBool("all")

		if all {
			steps = 0
		} else if steps <= 0 {
			return fmt.Errorf("--steps must be positive (or use --all)")
		}

		dsn, err := requireDatabase(cmd)
		if err != nil {
			return err
		}
		if err := database.MigrateDown(dsn, steps); err != nil {
			return err
		}
		return printVersion(cmd, dsn)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := requireDatabase(cmd)
		if err != nil {
			return err
		}
		return printVersion(cmd, dsn)
	},
}

type schemaVersion struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func printVersion(cmd *cobra.Command, dsn string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	v, dirty, err := database.Version(dsn)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if format == "json" {
		return output.JSON(schemaVersion{Version: v, Dirty: dirty})
	}
	if dirty {
		output.Warn("Schema version %d (dirty: a migration failed part way)", v)
		return nil
	}
	output.Success("Schema version %d", v)
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "roll back every migration")
}
