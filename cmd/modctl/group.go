package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/onnwee/modkeeper/db"
	"github.com/onnwee/modkeeper/permissions"
)

// groupStore is the part of the permission store the group commands need.
type groupStore interface {
	permissions.Store
	Entries(ctx context.Context, section string) ([]db.Entry, error)
}

// openStore returns the Postgres store and a release func. Tests replace it.
var openStore = func(cmd *cobra.Command) (groupStore, func(), error) {
	database, err := openDB(cmd)
	if err != nil {
		return nil, nil, err
	}
	return db.NewKVStore(database), func() { _ = database.Close() }, nil
}

func newGroupCmd() *cobra.Command {
	groupCmd := &cobra.Command{
		Use:   "group",
		Short: "Inspect or edit persisted group assignments",
		Long: `Inspect or edit persisted group assignments directly in the store.

A running bot keeps cached users in memory; an offline edit applies to a user
the next time they are loaded. Use the HTTP API to change a live user.`,
	}

	getCmd := &cobra.Command{
		Use:   "get <user>",
		Short: "Show a user's persisted group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, release, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer release()
			name := permissions.Normalize(args[0])
			v, ok, err := store.Get(cmd.Context(), permissions.SectionGroup, name)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d, not stored)\n", name, permissions.Viewer, permissions.Viewer)
				return nil
			}
			g := permissions.Viewer
			if n, err := strconv.Atoi(v); err == nil {
				g = permissions.Clamp(n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d)\n", name, g, g)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <user> <id>",
		Short: "Store a user's group (0 Caster ... 7 Viewer)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			g := permissions.GroupID(n)
			if err != nil || !g.Valid() {
				return fmt.Errorf("group id must be between 0 and 7, got %q", args[1])
			}
			store, release, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer release()
			name := permissions.Normalize(args[0])
			if err := store.Set(cmd.Context(), permissions.SectionGroup, name, strconv.Itoa(n)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d)\n", name, g, g)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list [id]",
		Short: "List persisted assignments, optionally for one group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := -1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || !permissions.GroupID(n).Valid() {
					return fmt.Errorf("group id must be between 0 and 7, got %q", args[0])
				}
				filter = n
			}
			store, release, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer release()
			entries, err := store.Entries(cmd.Context(), permissions.SectionGroup)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				n, err := strconv.Atoi(e.Value)
				if err != nil {
					n = int(permissions.Viewer)
				}
				g := permissions.Clamp(n)
				if filter >= 0 && int(g) != filter {
					continue
				}
				fmt.Fprintf(out, "%s\t%d\t%s\n", e.Key, g, g)
			}
			return nil
		},
	}

	groupCmd.AddCommand(getCmd, setCmd, listCmd)
	return groupCmd
}
