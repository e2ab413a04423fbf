// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BomberFish/geode/pkg/resolver"
)

func newGraphCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [dir]",
		Short: "Print the mod dependency graph in Graphviz DOT format",
		Long: `Print the mod dependency graph in Graphviz DOT format.

Required dependencies are solid edges, optional ones dashed. Mods that failed
to resolve are red; dependencies that are not installed are dotted.

  geode graph ./mods | dot -Tsvg > mods.svg`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descs, _, err := discoverMods(app.modsDir(args))
			if err != nil {
				return err
			}
			writeDOT(app.stdout, app.newOrchestrator().Resolve(descs))
			return nil
		},
	}
}

func writeDOT(w io.Writer, res *resolver.Resolution) {
	var sb strings.Builder
	sb.WriteString("digraph mods {\n")
	sb.WriteString("\trankdir=LR;\n")
	sb.WriteString("\tnode [shape=box, fontname=\"Helvetica\"];\n")

	declared := res.Declared()
	for _, key := range declared {
		rec := res.Mods[key]
		attrs := fmt.Sprintf("label=%s", dotQuote(rec.Descriptor.ID+"\n"+rec.Descriptor.Version.String()))
		if rec.State == resolver.StateUnresolved {
			attrs += ", color=red, fontcolor=red"
		}
		if rec.Descriptor.NeedsEarlyLoad {
			attrs += ", peripheries=2"
		}
		fmt.Fprintf(&sb, "\t%s [%s];\n", dotQuote(key), attrs)
	}

	missing := make(map[string]bool)
	for _, key := range declared {
		for _, dep := range res.Mods[key].Dependencies {
			target := dependencyKey(dep)
			if _, ok := res.Mods[target]; !ok && !missing[target] {
				missing[target] = true
				fmt.Fprintf(&sb, "\t%s [label=%s, style=dotted];\n", dotQuote(target), dotQuote(dep.TargetID+"\n(missing)"))
			}

			var attrs []string
			if !dep.IsRequired {
				attrs = append(attrs, "style=dashed")
			}
			if dep.State == resolver.StateUnresolved {
				attrs = append(attrs, "color=red")
			}
			edge := fmt.Sprintf("\t%s -> %s", dotQuote(key), dotQuote(target))
			if len(attrs) > 0 {
				edge += " [" + strings.Join(attrs, ", ") + "]"
			}
			sb.WriteString(edge + ";\n")
		}
	}

	sb.WriteString("}\n")
	fmt.Fprint(w, sb.String())
}

// dotQuote quotes s as a DOT string; newlines become \n line breaks.
func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
