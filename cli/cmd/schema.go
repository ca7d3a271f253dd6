package cmd

import (
	"github.com/haulwatch/haulwatch-stack/cli/pkg/output"
	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Describe the location event table",
	Long:  "List the columns of the location event table as PostgreSQL reports them",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, _ := cmd.Flags().GetString("table")

		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		dsn, err := requireDatabase(cmd)
		if err != nil {
			return err
		}

		pool, err := database.NewPool(cmd.Context(), dsn, database.PoolConfig{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()

		cols, err := database.DescribeTable(cmd.Context(), pool, table)
		if err != nil {
			return err
		}

		if format == "json" {
			return output.JSON(cols)
		}

		t := output.NewTable("COLUMN", "TYPE", "NULLABLE")
		for _, c := range cols {
			nullable := "NO"
			if c.Nullable {
				nullable = "YES"
			}
			t.AddRow(c.Name, c.DataType, nullable)
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)

	schemaCmd.Flags().String("table", database.LocationEventsTable, "table to describe")
}
