// Command modctl is the operator CLI for modkeeper: schema migrations, offline
// group inspection and edits, and a health probe for container checks.
//
// Usage:
//
//	modctl migrate up|down|version
//	modctl group get <user>
//	modctl group set <user> <id>
//	modctl group list [id]
//	modctl health [url]
//
// DB_DSN selects the database; a .env file in the working directory is loaded
// when present.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "modctl",
		Short:         "Operator tooling for the modkeeper permission bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dsn", "", "Postgres DSN (defaults to DB_DSN)")
	root.AddCommand(newMigrateCmd(), newGroupCmd(), newHealthCmd())
	return root
}

func dsnFlag(cmd *cobra.Command) string {
	if v, _ := cmd.Root().PersistentFlags().GetString("dsn"); v != "" {
		return v
	}
	return os.Getenv("DB_DSN")
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "modctl: %v\n", err)
		os.Exit(1)
	}
}
