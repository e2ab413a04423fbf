// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/internal/watch"
	"github.com/BomberFish/geode/pkg/loader"
)

func newWatchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Load the mods in a directory and reload them when a manifest changes",
		Long: `Load the mods in a directory and reload them when a manifest changes.

Changes are debounced (watch.debounce in the config). On each change every mod
that supports unloading is unloaded, the directory is resolved again and the
mods are loaded in the new order. Mods that cannot be unloaded stay loaded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), app, app.modsDir(args))
		},
	}
}

func runWatch(ctx context.Context, app *App, dir string) error {
	descs, problems, err := discoverMods(dir)
	if err != nil {
		return err
	}

	orch := app.newOrchestrator()
	orch.Resolve(descs)
	if err := orch.LoadAll(ctx); err != nil {
		app.logger.Warn("some mods failed to load", "error", err)
	}
	printProblems(app.stdout, "Invalid manifests", problems)
	printMods(app, orch)

	cfg := app.settings().WatcherConfig(dir)
	cfg.Logger = app.logger
	cfg.OnChange = func(ctx context.Context, changed []string) error {
		return reloadMods(ctx, app, orch, dir, changed)
	}

	w, err := watch.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Fprintf(app.stdout, "\n%s Watching %s for changes (Ctrl+C to stop)...\n\n", ModStyle.Render("→"), w.Dir())
	return w.Run(ctx)
}

// reloadMods re-discovers dir and reloads the orchestrator. Failures are printed,
// not returned, so one bad manifest does not stop the watcher.
func reloadMods(ctx context.Context, app *App, orch *loader.Orchestrator, dir string, changed []string) error {
	fmt.Fprintf(app.stdout, "%s Detected %d change(s), reloading...\n", ModStyle.Render("→"), len(changed))

	descs, problems, err := discoverMods(dir)
	if err != nil {
		return err
	}
	if _, err := orch.Reload(ctx, descs); err != nil {
		app.logger.Warn("reload finished with errors", "error", err)
	}

	printProblems(app.stdout, "Invalid manifests", problems)
	printMods(app, orch)
	fmt.Fprintf(app.stdout, "\n%s Watching for changes...\n\n", ModStyle.Render("→"))
	return nil
}

// printMods lists every mod with its lifecycle state in load order, followed by
// mods that are not loaded.
func printMods(app *App, orch *loader.Orchestrator) {
	mods := orch.Mods()
	fmt.Fprintln(app.stdout, TitleStyle.Render(fmt.Sprintf("Mods (%d)", len(mods))))
	for _, m := range mods {
		state := m.State()
		style := SuccessStyle
		switch state {
		case loader.StateDisabled:
			style = WarningStyle
		case loader.StateUnloaded, loader.StateUnloading:
			style = SubtitleStyle
		}
		line := fmt.Sprintf("  %s %s %s", ModStyle.Render(m.ID()), SubtitleStyle.Render(m.Descriptor().Version.String()), style.Render(state.String()))
		fmt.Fprintln(app.stdout, line)
		if err := m.Err(); err != nil {
			fmt.Fprintln(app.stdout, problemStyle.Render(err.Error()))
		}
	}
}
