package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"mini-ide/internal/fileaccess"
	"mini-ide/internal/workspace"

	"github.com/spf13/cobra"
)

type treeOptions struct {
	depth     int
	exclude   []string
	noExclude bool
	asJSON    bool
}

func newTreeCmd(root *rootOptions) *cobra.Command {
	opts := &treeOptions{}
	cmd := &cobra.Command{
		Use:   "tree <dir>",
		Short: "Print the explorer tree of a workspace",
		Long: "Opens dir as a workspace the way the explorer does, expands " +
			"directories down to --depth and prints the visible rows.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.depth < 1 {
				return fmt.Errorf("--depth must be at least 1, got %d", opts.depth)
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			exclude := slices.Concat(cfg.Explorer.Exclude, opts.exclude)
			if opts.noExclude {
				exclude = []string{}
			}
			view, err := buildTree(cmd.Context(), args[0], exclude, opts.depth)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeTreeJSON(cmd.OutOrStdout(), view)
			}
			return writeTreeText(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().IntVarP(&opts.depth, "depth", "d", 1, "levels to show; 1 lists only the root's entries")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "extra doublestar patterns to hide, added to explorer.exclude")
	cmd.Flags().BoolVar(&opts.noExclude, "no-exclude", false, "show every entry")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the tree projection as JSON")
	return cmd
}

// buildTree opens dir and expands directories until depth levels are
// visible. Directories that cannot be listed stay collapsed.
func buildTree(ctx context.Context, dir string, exclude []string, depth int) (workspace.TreeView, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	files := fileaccess.NewBinder(nil)
	root, err := files.Bind(dir)
	if err != nil {
		return workspace.TreeView{}, fmt.Errorf("open workspace: %s", fileaccess.MessageOf(err))
	}
	ctrl := workspace.NewController(workspace.Options{
		Collaborator: files,
		Exclude:      exclude,
	})
	if err := ctrl.OpenWorkspace(ctx, root); err != nil {
		return workspace.TreeView{}, err
	}

	tried := make(map[string]struct{})
	for {
		var next []string
		for _, node := range ctrl.TreeView().Nodes {
			if !node.IsDirectory || node.Expanded || node.Depth+1 >= depth {
				continue
			}
			if _, seen := tried[node.Path]; seen {
				continue
			}
			next = append(next, node.Path)
		}
		if len(next) == 0 {
			return ctrl.TreeView(), nil
		}
		for _, path := range next {
			tried[path] = struct{}{}
			if err := ctrl.Expand(ctx, path); err != nil {
				if ctx.Err() != nil {
					return workspace.TreeView{}, ctx.Err()
				}
				slog.Debug("[minide] directory left collapsed", "path", path, "error", err)
			}
		}
	}
}

func writeTreeText(w io.Writer, view workspace.TreeView) error {
	if _, err := fmt.Fprintf(w, "%s/\n", view.RootName); err != nil {
		return err
	}
	for _, node := range view.Nodes {
		indent := strings.Repeat("  ", node.Depth+1)
		line := indent + node.Name
		if node.IsDirectory {
			line += "/"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeTreeJSON(w io.Writer, view workspace.TreeView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
