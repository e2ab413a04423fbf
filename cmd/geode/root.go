// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for geode.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/internal/config"
	"github.com/BomberFish/geode/internal/issue"
	"github.com/BomberFish/geode/pkg/telemetry"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App wires CLI services and shared state. Every command handler receives it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer

		// Set by the root command before any subcommand runs.
		cfg    *config.Config
		logger *log.Logger

		// mdStyle is the glamour style for explanations; empty means "dark".
		mdStyle string
	}

	rootFlagValues struct {
		configPath string
		verbose    bool
	}
)

// NewApp creates an App writing to stdout and stderr. A nil provider means the
// file and environment backed default.
func NewApp(provider ConfigProvider, stdout, stderr io.Writer) *App {
	if provider == nil {
		provider = config.NewProvider()
	}
	return &App{Config: provider, stdout: stdout, stderr: stderr, logger: log.New(stderr)}
}

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "geode",
		Short: "Resolve, load and hot-reload game mods",
		Long: TitleStyle.Render("geode") + SubtitleStyle.Render(" - Resolve, load and hot-reload game mods") + `

geode reads one manifest per mod (mod.cue, mod.json or mod.toml), checks
every dependency against the installed mods and computes the order in which
the loader will set them up.

` + SubtitleStyle.Render("Examples:") + `
  geode resolve ./mods          Print the load order and every failure
  geode resolve --explain       Explain each failure in detail
  geode validate mod.json       Validate a single manifest
  geode graph | dot -Tsvg       Render the dependency graph
  geode watch                   Re-resolve whenever a manifest changes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd.Context(), flags)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/geode/config.cue)")

	rootCmd.AddCommand(newResolveCommand(app))
	rootCmd.AddCommand(newValidateCommand(app))
	rootCmd.AddCommand(newGraphCommand(app))
	rootCmd.AddCommand(newWatchCommand(app))
	rootCmd.AddCommand(newConfigCommand(app, flags))

	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// setup loads the configuration and builds the logger. A broken config file is
// reported and the defaults are used, so `geode config init --force` keeps working.
func (a *App) setup(ctx context.Context, flags *rootFlagValues) error {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, flags.verbose))
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a.cfg = cfg

	level := cfg.LogLevel.Level()
	if flags.verbose {
		level = log.DebugLevel
	}
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "geode",
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return nil
}

// sink forwards loader events to the CLI logger.
func (a *App) sink() telemetry.Sink {
	return telemetry.NewLogSink(a.logger)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command and exits with its status.
// This is called by main.main().
func Execute() {
	app := NewApp(nil, os.Stdout, os.Stderr)

	// fang overrides rootCmd.Version, so the version goes through fang.WithVersion.
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display.
// In verbose mode an ActionableError shows its full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
