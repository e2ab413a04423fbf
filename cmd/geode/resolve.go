// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/internal/issue"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/resolver"
)

type (
	resolveFlagValues struct {
		explain bool
		json    bool
	}

	resolutionReport struct {
		Order      []string    `json:"order"`
		Mods       []modReport `json:"mods"`
		Structural []string    `json:"structural,omitempty"`
		Invalid    []string    `json:"invalid_manifests,omitempty"`
	}

	modReport struct {
		ID           string             `json:"id"`
		Version      string             `json:"version"`
		Source       string             `json:"source,omitempty"`
		State        string             `json:"state"`
		EarlyLoad    bool               `json:"early_load,omitempty"`
		Dependencies []dependencyReport `json:"dependencies,omitempty"`
		Problems     []string           `json:"problems,omitempty"`
	}

	dependencyReport struct {
		ID       string `json:"id"`
		Version  string `json:"version"`
		Required bool   `json:"required"`
		State    string `json:"state"`
		Problem  string `json:"problem,omitempty"`
	}
)

func newResolveCommand(app *App) *cobra.Command {
	flags := &resolveFlagValues{}

	cmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Resolve the mods in a directory and print the load order",
		Long: `Resolve the mods in a directory and print the load order.

Every immediate subdirectory holding a mod.cue, mod.json or mod.toml manifest is
a mod. Mods that cannot load are listed with the reason; the command exits with
status 1 when any mod fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(app, app.modsDir(args), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.explain, "explain", false, "explain every kind of failure in detail")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print the resolution as JSON")
	return cmd
}

func runResolve(app *App, dir string, flags *resolveFlagValues) error {
	descs, problems, err := discoverMods(dir)
	if err != nil {
		return err
	}

	res := app.newOrchestrator().Resolve(descs)

	if flags.json {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(newResolutionReport(res, problems)); err != nil {
			return fmt.Errorf("failed to encode resolution: %w", err)
		}
	} else {
		printProblems(app.stdout, "Invalid manifests", problems)
		printResolution(app.stdout, res)
		if flags.explain || app.settings().Explain {
			if err := explainFailures(app.stdout, app.markdownStyle(), res, problems); err != nil {
				return err
			}
		}
	}

	if n := len(res.Failed()) + len(problems); n > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d mod(s) cannot be loaded", n)}
	}
	return nil
}

// markdownStyle is the glamour style for issue explanations.
func (a *App) markdownStyle() string {
	if a.mdStyle != "" {
		return a.mdStyle
	}
	return "dark"
}

func printResolution(w io.Writer, res *resolver.Resolution) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Load order (%d)", len(res.Order))))
	for i, key := range res.Order {
		d := res.Mods[key].Descriptor
		line := fmt.Sprintf("%s %s %s", indexStyle.Render(fmt.Sprint(i+1)), ModStyle.Render(d.ID), SubtitleStyle.Render(d.Version.String()))
		if d.NeedsEarlyLoad {
			line += " " + VerboseStyle.Render("[early]")
		}
		fmt.Fprintln(w, line)
	}

	failed := res.Failed()
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ErrorStyle.Render(fmt.Sprintf("Failed (%d)", len(failed))))
	for _, key := range failed {
		rec := res.Mods[key]
		fmt.Fprintf(w, "  %s %s %s\n", ErrorStyle.Render("✗"), ModStyle.Render(rec.Descriptor.ID), SubtitleStyle.Render(rec.Descriptor.Version.String()))
		for _, p := range rec.Problems {
			fmt.Fprintln(w, problemStyle.Render(p.Error()))
		}
	}
}

func printProblems(w io.Writer, title string, problems []error) {
	if len(problems) == 0 {
		return
	}
	fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("%s (%d)", title, len(problems))))
	for _, p := range problems {
		fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render("!"), p.Error())
	}
	fmt.Fprintln(w)
}

// explainFailures renders each catalog issue behind the failures once, in
// catalog order.
func explainFailures(w io.Writer, style string, res *resolver.Resolution, problems []error) error {
	errs := append([]error(nil), problems...)
	errs = append(errs, res.Structural...)
	for _, key := range res.Failed() {
		errs = append(errs, res.Mods[key].Problems...)
	}

	seen := make(map[issue.Id]bool)
	for _, is := range issue.Values() {
		for _, err := range errs {
			if got := issue.ForError(err); got != nil && got.Id() == is.Id() && !seen[is.Id()] {
				seen[is.Id()] = true
				out, renderErr := is.Render(style)
				if renderErr != nil {
					return fmt.Errorf("failed to render explanation: %w", renderErr)
				}
				fmt.Fprint(w, out)
			}
		}
	}
	return nil
}

func newResolutionReport(res *resolver.Resolution, problems []error) resolutionReport {
	report := resolutionReport{
		Order: append([]string{}, res.Order...),
		Mods:  []modReport{},
	}
	for _, err := range res.Structural {
		report.Structural = append(report.Structural, err.Error())
	}
	for _, err := range problems {
		report.Invalid = append(report.Invalid, err.Error())
	}

	for _, key := range res.Declared() {
		rec := res.Mods[key]
		mr := modReport{
			ID:        rec.Descriptor.ID,
			Version:   rec.Descriptor.Version.String(),
			Source:    rec.Descriptor.Source,
			State:     rec.State.String(),
			EarlyLoad: rec.Descriptor.NeedsEarlyLoad,
		}
		for _, dep := range rec.Dependencies {
			dr := dependencyReport{
				ID:       dep.TargetID,
				Version:  dep.Constraint.String(),
				Required: dep.IsRequired,
				State:    dep.State.String(),
			}
			if dep.Problem != nil {
				dr.Problem = dep.Problem.Error()
			}
			mr.Dependencies = append(mr.Dependencies, dr)
		}
		for _, p := range rec.Problems {
			mr.Problems = append(mr.Problems, p.Error())
		}
		report.Mods = append(report.Mods, mr)
	}
	return report
}

// dependencyKey is the node a dependency edge points at.
func dependencyKey(dep resolver.Dependency) string {
	if dep.ResolvedID != "" {
		return dep.ResolvedID
	}
	return modinfo.NormalizeID(dep.TargetID)
}

// sourceLabel shortens a manifest path for display.
func sourceLabel(d *modinfo.Descriptor) string {
	if d.Source == "" {
		return "built-in"
	}
	return strings.TrimPrefix(d.Source, "./")
}
