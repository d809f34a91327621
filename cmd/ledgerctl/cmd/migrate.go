package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/db"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			err = db.RunMigrations(database.DB, cfg.DBDriver)
			if err != nil {
				return err
			}
			return printVersion(cmd, cfg.DBDriver, database)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			err = db.MigrateDown(database.DB, cfg.DBDriver)
			if err != nil {
				return err
			}
			return printVersion(cmd, cfg.DBDriver, database)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			return printVersion(cmd, cfg.DBDriver, database)
		},
	})

	return migrateCmd
}

func printVersion(cmd *cobra.Command, driver string, database *sqlx.DB) error {
	version, err := db.Version(database.DB, driver)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
