// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/internal/issue"
	"github.com/BomberFish/geode/pkg/modinfo"
)

func newValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest|dir>...",
		Short: "Validate mod manifests",
		Long: `Validate mod manifests against the manifest schema.

A directory argument validates the manifest inside it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(app, args)
		},
	}
}

func runValidate(app *App, paths []string) error {
	failed := 0
	for _, path := range paths {
		d, err := validateManifest(path)
		if err != nil {
			failed++
			fmt.Fprintf(app.stdout, "%s %s\n", ErrorStyle.Render("✗"), path)
			for _, p := range splitJoined(err) {
				fmt.Fprintln(app.stdout, problemStyle.Render(p.Error()))
			}
			if is := issue.ForError(err); is != nil {
				fmt.Fprintln(app.stdout, problemStyle.Render(SubtitleStyle.Render("hint: "+is.Hint())))
			}
			continue
		}

		line := fmt.Sprintf("%s %s %s %s", SuccessStyle.Render("✓"), ModStyle.Render(d.ID),
			SubtitleStyle.Render(d.Version.String()), VerboseStyle.Render("("+sourceLabel(d)+")"))
		fmt.Fprintln(app.stdout, line)
	}

	if failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d manifest(s) are invalid", failed, len(paths))}
	}
	return nil
}

func validateManifest(path string) (*modinfo.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		if path, err = modinfo.FindManifest(path); err != nil {
			return nil, err
		}
	}
	return modinfo.ParseFile(path)
}
