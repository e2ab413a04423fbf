// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/internal/config"
	"github.com/BomberFish/geode/internal/issue"
)

// newConfigCommand creates the `geode config` command tree.
func newConfigCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage geode configuration",
		Long: `Manage geode configuration.

Configuration is stored in:
  - Linux: ~/.config/geode/config.cue
  - macOS: ~/Library/Application Support/geode/config.cue
  - Windows: %APPDATA%\geode\config.cue

Every field can be overridden with a GEODE_* environment variable, for example
GEODE_MODS_DIR or GEODE_WATCH_DEBOUNCE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var showDefaults bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showDefaults {
				fmt.Fprint(app.stdout, config.GenerateCUE(config.DefaultConfig()))
				return nil
			}
			showConfig(app)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showDefaults, "defaults", false, "print the default configuration as CUE")
	cfgCmd.AddCommand(showCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path(config.LoadOptions{ConfigFilePath: rootFlags.configPath})
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, rootFlags.configPath, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}

func showConfig(app *App) {
	cfg := app.settings()
	keyStyle := ModStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	if cfg.Source != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), cfg.Source)
	} else {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(app.stdout)

	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("mods_dir"), valueStyle.Render(cfg.ModsDir))
	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("log_level"), valueStyle.Render(cfg.LogLevel.String()))
	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("explain"), valueStyle.Render(fmt.Sprint(cfg.Explain)))
	fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("disabled_mods"), listOrNone(cfg.DisabledMods))

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s:\n", keyStyle.Render("watch"))
	fmt.Fprintf(app.stdout, "  enabled: %s\n", valueStyle.Render(fmt.Sprint(cfg.Watch.Enabled)))
	fmt.Fprintf(app.stdout, "  debounce: %s\n", valueStyle.Render(cfg.Watch.Debounce.String()))
	fmt.Fprintf(app.stdout, "  patterns: %s\n", listOrNone(cfg.Watch.Patterns))
	fmt.Fprintf(app.stdout, "  ignore: %s\n", listOrNone(cfg.Watch.Ignore))
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return SubtitleStyle.Render("(none)")
	}
	return SuccessStyle.Render(strings.Join(items, ", "))
}

func initConfig(app *App, configPath string, force bool) error {
	path, err := config.Path(config.LoadOptions{ConfigFilePath: configPath})
	if err != nil {
		return err
	}

	if err := config.WriteDefault(path, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return issue.NewErrorContext().
				WithOperation("create configuration").
				WithResource(path).
				WithSuggestion("Run 'geode config init --force' to overwrite it").
				Wrap(err).
				BuildError()
		}
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
