package main

import (
	"fmt"
	"io"
	"log/slog"

	"mini-ide/internal/config"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "minide",
		Short:         "Headless tools for the Mini IDE workspace core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: the desktop app's config)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		newTreeCmd(opts),
		newScaffoldCmd(),
		newRecentCmd(opts),
	)
	return cmd
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// resolvedConfigPath returns --config or the desktop app's config path.
func (o *rootOptions) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

// loadConfig reads the config without creating it. A missing file yields
// defaults; a broken one is an error so the user sees it.
func (o *rootOptions) loadConfig() (config.Config, error) {
	path := o.resolvedConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	slog.Debug("[minide] config loaded", "path", path)
	return cfg, nil
}
