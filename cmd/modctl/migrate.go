package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/modkeeper/db"
)

// openDB connects using the --dsn flag or DB_DSN.
var openDB = func(cmd *cobra.Command) (*sql.DB, error) {
	database, err := db.Connect(dsnFlag(cmd))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := database.PingContext(cmd.Context()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return database, nil
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all up migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.RunMigrations(database); err != nil {
				return err
			}
			return printVersion(cmd, database)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Long:  "Roll back the most recent migration. Rolling back permission_kv drops every stored group assignment.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.MigrateDown(database); err != nil {
				return err
			}
			return printVersion(cmd, database)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer database.Close()
			return printVersion(cmd, database)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func printVersion(cmd *cobra.Command, database *sql.DB) error {
	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}
