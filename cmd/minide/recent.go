package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"mini-ide/internal/config"
	"mini-ide/internal/recent"

	"github.com/spf13/cobra"
)

func newRecentCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Manage the recent workspace list",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recently opened workspaces, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRecentStore(root, func(store *recent.Store) error {
					workspaces, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					for _, ws := range workspaces {
						fmt.Fprintf(w, "%s\t%s\t%s\n", ws.Name, ws.LastOpened.Format(time.DateTime), ws.Root)
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "add <dir>",
			Short: "Record dir as opened now",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				return withRecentStore(root, func(store *recent.Store) error {
					return store.Touch(cmd.Context(), dir)
				})
			},
		},
		&cobra.Command{
			Use:   "forget <dir>",
			Short: "Remove dir and its saved expansion from the list",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				return withRecentStore(root, func(store *recent.Store) error {
					return store.Remove(cmd.Context(), dir)
				})
			},
		},
	)
	return cmd
}

// withRecentStore opens the desktop app's recent database for fn.
func withRecentStore(root *rootOptions, fn func(store *recent.Store) error) (err error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	path := filepath.Join(config.DataDir(root.resolvedConfigPath()), recent.DatabaseName)
	store, err := recent.Open(path, cfg.Recent.MaxEntries)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(store)
}
