// SPDX-License-Identifier: MPL-2.0

// Package resolver computes the load order of a set of mods, or explains precisely
// why some of them cannot load.
//
// Resolution never stops at the first problem. Failures are isolated: a cycle,
// a duplicate id or a missing dependency only takes out the mods involved and the
// mods that (transitively) require them. Everything else resolves and is ordered
// so that every mod comes after the mods it requires.
package resolver

import (
	"errors"
	"sync"
	"time"

	"github.com/BomberFish/geode/internal/dag"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/telemetry"
)

type (
	// Resolver runs resolution passes. Passes are serialized; a Resolver is safe to
	// share but never runs two passes at once.
	Resolver struct {
		mu   sync.Mutex
		sink telemetry.Sink
	}

	// Option configures a Resolver.
	Option func(*Resolver)

	// Resolution is the outcome of one pass. It is returned even when mods fail:
	// failures are data.
	Resolution struct {
		// Order lists the identity keys of resolved mods in load order.
		Order []string
		// Mods holds one record per distinct identity key.
		Mods map[string]*Record
		// Structural lists problems with the shape of the mod set, once each.
		Structural []error

		declared []string
	}
)

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(r *Resolver) {
		r.sink = telemetry.OrNop(s)
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{sink: telemetry.Nop}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs a pass over descs. Declaration order is significant: it breaks
// ordering ties, so the result is deterministic for a given input.
func (r *Resolver) Resolve(descs []*modinfo.Descriptor) *Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	r.sink.Emit(telemetry.ResolutionStarted{Mods: len(descs)})

	res := resolve(descs)

	states := make(map[string]string, len(res.Mods))
	for k, rec := range res.Mods {
		states[k] = rec.State.String()
	}
	r.sink.Emit(telemetry.ResolutionFinished{
		Order:    res.Order,
		States:   states,
		Failures: len(res.Failed()),
		Duration: time.Since(start),
	})

	return res
}

func resolve(descs []*modinfo.Descriptor) *Resolution {
	res := &Resolution{Mods: make(map[string]*Record)}

	groups := make(map[string][]*modinfo.Descriptor)
	for _, d := range descs {
		if d == nil {
			continue
		}
		k := d.Key()
		if _, seen := groups[k]; !seen {
			res.declared = append(res.declared, k)
		}
		groups[k] = append(groups[k], d)
	}

	duplicated := make(map[string]bool)
	for _, k := range res.declared {
		g := groups[k]
		rec := &Record{Descriptor: g[0], State: StateResolving}
		res.Mods[k] = rec

		if len(g) > 1 {
			sources := make([]string, len(g))
			for i, d := range g {
				sources[i] = sourceName(d)
			}
			err := &DuplicateIDError{ID: g[0].ID, Sources: sources}
			res.Structural = append(res.Structural, err)
			rec.fail(err)
			duplicated[k] = true
			continue
		}

		for _, spec := range g[0].Dependencies {
			rec.Dependencies = append(rec.Dependencies, Dependency{
				TargetID:   spec.ID,
				Constraint: spec.Version,
				IsRequired: spec.Required,
				State:      StateUnloaded,
			})
		}
	}

	res.checkTargets(duplicated)
	res.checkCycles(duplicated)
	res.checkEarlyLoad(duplicated)
	res.propagate()
	res.settleDependencies()
	res.order()

	return res
}

// checkTargets fails dependencies whose target is absent or has another version.
func (res *Resolution) checkTargets(duplicated map[string]bool) {
	for _, k := range res.declared {
		if duplicated[k] {
			continue
		}
		rec := res.Mods[k]
		for i := range rec.Dependencies {
			dep := &rec.Dependencies[i]
			target, ok := res.Mods[dep.key()]
			var err error
			switch {
			case !ok:
				err = &MissingDependencyError{ModID: rec.Descriptor.ID, TargetID: dep.TargetID}
			case duplicated[dep.key()]:
				// Left to cascade: the target exists but is excluded.
				continue
			case !dep.Constraint.Satisfies(target.Descriptor.Version):
				err = &VersionMismatchError{
					ModID:    rec.Descriptor.ID,
					TargetID: dep.TargetID,
					Required: dep.Constraint,
					Found:    target.Descriptor.Version,
				}
			default:
				continue
			}
			dep.fail(err)
			if dep.IsRequired {
				rec.fail(err)
			}
		}
	}
}

// checkCycles fails every member of a cycle of required, satisfiable edges.
func (res *Resolution) checkCycles(duplicated map[string]bool) {
	g := dag.New()
	for _, k := range res.declared {
		if !duplicated[k] {
			g.AddNode(k)
		}
	}
	for _, k := range res.declared {
		if duplicated[k] {
			continue
		}
		for _, dep := range res.Mods[k].Dependencies {
			if dep.IsRequired && dep.State == StateUnloaded && !duplicated[dep.key()] {
				g.AddEdge(dep.key(), k)
			}
		}
	}

	for _, members := range g.Cycles() {
		in := make(map[string]bool, len(members))
		ids := make([]string, len(members))
		for i, m := range members {
			in[m] = true
			ids[i] = res.Mods[m].Descriptor.ID
		}
		err := &CycleError{Members: ids}
		res.Structural = append(res.Structural, err)

		for _, m := range members {
			rec := res.Mods[m]
			rec.fail(err)
			for i := range rec.Dependencies {
				dep := &rec.Dependencies[i]
				if dep.IsRequired && in[dep.key()] {
					dep.fail(err)
				}
			}
		}
	}
}

// checkEarlyLoad fails early-load mods that require a mod which does not load early.
func (res *Resolution) checkEarlyLoad(duplicated map[string]bool) {
	for _, k := range res.declared {
		rec := res.Mods[k]
		if duplicated[k] || !rec.Descriptor.NeedsEarlyLoad {
			continue
		}
		for i := range rec.Dependencies {
			dep := &rec.Dependencies[i]
			if !dep.IsRequired || duplicated[dep.key()] {
				continue
			}
			target, ok := res.Mods[dep.key()]
			if !ok || target.Descriptor.NeedsEarlyLoad {
				continue
			}
			err := &InvalidEarlyLoadOrderingError{ModID: rec.Descriptor.ID, TargetID: dep.TargetID}
			res.Structural = append(res.Structural, err)
			dep.fail(err)
			rec.fail(err)
		}
	}
}

// propagate runs to a fixed point: a mod resolves once all its required targets
// resolved, and fails as soon as one of them failed.
func (res *Resolution) propagate() {
	for changed := true; changed; {
		changed = false
		for _, k := range res.declared {
			rec := res.Mods[k]
			if rec.State != StateResolving {
				continue
			}

			ready := true
			for i := range rec.Dependencies {
				dep := &rec.Dependencies[i]
				if !dep.IsRequired || dep.State != StateUnloaded {
					continue
				}
				target := res.Mods[dep.key()]
				switch target.State {
				case StateResolved:
					dep.State = StateResolved
					dep.ResolvedID = dep.key()
				case StateUnresolved:
					err := &UnresolvedDependencyError{ModID: rec.Descriptor.ID, TargetID: dep.TargetID, Cause: target.Err()}
					dep.fail(err)
					rec.fail(err)
				default:
					ready = false
				}
			}

			switch {
			case rec.State == StateUnresolved:
				changed = true
			case ready:
				rec.State = StateResolved
				changed = true
			}
		}
	}

	// Unreachable when cycle detection is complete; kept so no record is left mid-pass.
	var stuck []string
	for _, k := range res.declared {
		if res.Mods[k].State == StateResolving {
			stuck = append(stuck, k)
		}
	}
	if len(stuck) > 0 {
		ids := make([]string, len(stuck))
		for i, k := range stuck {
			ids[i] = res.Mods[k].Descriptor.ID
		}
		err := &CycleError{Members: ids}
		res.Structural = append(res.Structural, err)
		for _, k := range stuck {
			res.Mods[k].fail(err)
		}
	}
}

// settleDependencies gives every dependency still pending a final state from its target.
func (res *Resolution) settleDependencies() {
	for _, k := range res.declared {
		rec := res.Mods[k]
		for i := range rec.Dependencies {
			dep := &rec.Dependencies[i]
			if dep.State != StateUnloaded {
				continue
			}
			target, ok := res.Mods[dep.key()]
			if !ok {
				continue
			}
			if target.State == StateResolved {
				dep.State = StateResolved
				dep.ResolvedID = dep.key()
				continue
			}
			dep.fail(&UnresolvedDependencyError{ModID: rec.Descriptor.ID, TargetID: dep.TargetID, Cause: target.Err()})
		}
	}
}

// order sorts resolved mods: early-load mods first, then required targets before
// their dependents, then optional targets where that adds no cycle. Ties keep
// declaration order.
func (res *Resolution) order() {
	g := dag.New()
	for _, early := range []bool{true, false} {
		for _, k := range res.declared {
			rec := res.Mods[k]
			if rec.State == StateResolved && rec.Descriptor.NeedsEarlyLoad == early {
				g.AddNode(k)
			}
		}
	}

	var optional [][2]string
	for _, k := range g.Nodes() {
		for _, dep := range res.Mods[k].Dependencies {
			if dep.State != StateResolved {
				continue
			}
			if dep.IsRequired {
				g.AddEdge(dep.ResolvedID, k)
			} else {
				optional = append(optional, [2]string{dep.ResolvedID, k})
			}
		}
	}

	for _, e := range optional {
		target, dependent := e[0], e[1]
		if target == dependent || g.HasEdge(target, dependent) {
			continue
		}
		if res.Mods[dependent].Descriptor.NeedsEarlyLoad && !res.Mods[target].Descriptor.NeedsEarlyLoad {
			continue
		}
		if g.Reachable(dependent, target) {
			continue
		}
		g.AddEdge(target, dependent)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		res.Structural = append(res.Structural, err)
		return
	}
	res.Order = order
}

func sourceName(d *modinfo.Descriptor) string {
	if d.Source != "" {
		return d.Source
	}
	return d.String()
}

// Declared returns every identity key in declaration order.
func (res *Resolution) Declared() []string {
	out := make([]string, len(res.declared))
	copy(out, res.declared)
	return out
}

// Record returns the record for id (matched case-insensitively), or nil.
func (res *Resolution) Record(id string) *Record {
	return res.Mods[modinfo.NormalizeID(id)]
}

// Resolved reports whether id resolved.
func (res *Resolution) Resolved(id string) bool {
	rec := res.Record(id)
	return rec != nil && rec.State == StateResolved
}

// Failed returns the keys of Unresolved mods in declaration order.
func (res *Resolution) Failed() []string {
	var out []string
	for _, k := range res.declared {
		if res.Mods[k].State == StateUnresolved {
			out = append(out, k)
		}
	}
	return out
}

// Dependents returns the keys of mods that declare a required dependency on id,
// in declaration order.
func (res *Resolution) Dependents(id string) []string {
	key := modinfo.NormalizeID(id)
	var out []string
	for _, k := range res.declared {
		for _, dep := range res.Mods[k].Dependencies {
			if dep.IsRequired && dep.key() == key {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// Err joins every structural problem and every per-mod problem, or returns nil
// when all mods resolved.
func (res *Resolution) Err() error {
	errs := append([]error(nil), res.Structural...)
	for _, k := range res.Failed() {
		for _, p := range res.Mods[k].Problems {
			if !isStructural(p) {
				errs = append(errs, p)
			}
		}
	}
	return errors.Join(errs...)
}

// Reset returns every record to StateUnloaded and clears the order.
func (res *Resolution) Reset() {
	res.Order = nil
	res.Structural = nil
	for _, rec := range res.Mods {
		rec.Reset()
	}
}
