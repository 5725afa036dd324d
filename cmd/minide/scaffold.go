package main

import (
	"fmt"

	"mini-ide/internal/scaffold"

	"github.com/spf13/cobra"
)

func newScaffoldCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scaffold [dir]",
		Short: "Create the sample workspace",
		Long: "Writes the sample workspace the desktop app opens from File > Open Sample Workspace. " +
			"An existing directory at the target is replaced. Without dir the sample goes under the temp directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := scaffold.DefaultDir()
			if len(args) == 1 {
				dir = args[0]
			}
			root, err := scaffold.Create(dir)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), root)
			return err
		},
	}
}
