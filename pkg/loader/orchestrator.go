// SPDX-License-Identifier: MPL-2.0

// Package loader drives mods through their lifecycle.
//
// An [Orchestrator] owns every piece of mutable loader state: the descriptors, the
// last resolution, the runtime [Mod] instances and the hook engine. There is no
// package-level state; hosts construct one orchestrator per process run.
//
//	orch := loader.New(loader.Options{Patcher: table})
//	orch.Register("com.example.mod", myEntrypoint)
//	res := orch.Resolve(descs)
//	err := orch.LoadAll(ctx)
package loader

import (
	"slices"
	"sync"

	"github.com/BomberFish/geode/pkg/hook"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/resolver"
	"github.com/BomberFish/geode/pkg/telemetry"
	"github.com/BomberFish/geode/pkg/version"
)

// InternalModID is the id of the loader's own mod, present in every resolution.
const InternalModID = "geode.loader"

type (
	// Options configures an Orchestrator.
	Options struct {
		// Patcher redirects host functions. Defaults to a new hook.FuncTable.
		Patcher hook.Patcher
		// Sink receives resolution, hook and lifecycle events.
		Sink telemetry.Sink
		// Version is the version of the internal loader mod.
		Version version.Version
		// Internal is the entrypoint of the internal loader mod. It may be nil.
		Internal Entrypoint
		// Disabled lists mods that LoadAll leaves disabled after loading them.
		Disabled []string
	}

	// Orchestrator loads, toggles and unloads mods.
	Orchestrator struct {
		engine   *hook.Engine
		resolver *resolver.Resolver
		sink     telemetry.Sink
		internal *modinfo.Descriptor
		disabled map[string]bool

		// opMu serializes resolution and lifecycle operations.
		opMu       sync.Mutex
		resolution *resolver.Resolution
		loadSeq    int

		// modsMu guards mods and entrypoints, which mod code may read during setup.
		modsMu      sync.RWMutex
		mods        map[string]*Mod
		entrypoints map[string]Entrypoint
	}
)

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	patcher := opts.Patcher
	if patcher == nil {
		patcher = hook.NewFuncTable()
	}
	sink := telemetry.OrNop(opts.Sink)

	o := &Orchestrator{
		engine:      hook.NewEngine(patcher, hook.WithSink(sink)),
		resolver:    resolver.New(resolver.WithSink(sink)),
		sink:        sink,
		disabled:    make(map[string]bool, len(opts.Disabled)),
		mods:        make(map[string]*Mod),
		entrypoints: make(map[string]Entrypoint),
		internal: &modinfo.Descriptor{
			ID:             InternalModID,
			Version:        opts.Version,
			Name:           "Geode",
			Description:    "The mod loader itself",
			NeedsEarlyLoad: true,
		},
	}
	for _, id := range opts.Disabled {
		o.disabled[modinfo.NormalizeID(id)] = true
	}
	if opts.Internal != nil {
		o.entrypoints[InternalModID] = opts.Internal
	}
	return o
}

// Engine returns the hook engine shared by every mod.
func (o *Orchestrator) Engine() *hook.Engine { return o.engine }

// Register binds code to a mod id. A mod without an entrypoint is data-only: it
// takes part in resolution and lifecycle but installs nothing. Registering
// replaces any earlier entrypoint; the change applies the next time the mod loads.
func (o *Orchestrator) Register(id string, entry Entrypoint) error {
	if err := modinfo.ValidateID(id); err != nil {
		return err
	}
	key := modinfo.NormalizeID(id)

	o.modsMu.Lock()
	defer o.modsMu.Unlock()
	o.entrypoints[key] = entry
	if m := o.mods[key]; m != nil && m.State() == StateUnloaded {
		m.entry = entry
	}
	return nil
}

// Resolve resolves descs together with the internal mod and refreshes the mod
// table: new mods are added as Unloaded, mods that are still loaded keep their
// runtime instance, and unloaded mods that disappeared are dropped.
func (o *Orchestrator) Resolve(descs []*modinfo.Descriptor) *resolver.Resolution {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.resolveLocked(descs)
}

func (o *Orchestrator) resolveLocked(descs []*modinfo.Descriptor) *resolver.Resolution {
	all := make([]*modinfo.Descriptor, 0, len(descs)+1)
	all = append(all, o.internal)
	all = append(all, descs...)

	// Earlier resolutions stay intact for callers still holding them.
	res := o.resolver.Resolve(all)
	o.resolution = res

	o.modsMu.Lock()
	defer o.modsMu.Unlock()

	for key, m := range o.mods {
		if _, ok := res.Mods[key]; !ok && m.State() == StateUnloaded {
			delete(o.mods, key)
		}
	}
	for key, rec := range res.Mods {
		if m := o.mods[key]; m == nil || m.State() == StateUnloaded {
			o.mods[key] = newMod(rec.Descriptor, o.entrypoints[key])
		}
	}
	return res
}

// Resolution returns the last resolution, or nil before the first Resolve.
func (o *Orchestrator) Resolution() *resolver.Resolution {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.resolution
}

func (o *Orchestrator) entrypoint(m *Mod) Entrypoint {
	o.modsMu.RLock()
	defer o.modsMu.RUnlock()
	return m.entry
}

// Mod returns the runtime instance of id, or nil.
func (o *Orchestrator) Mod(id string) *Mod {
	o.modsMu.RLock()
	defer o.modsMu.RUnlock()
	return o.mods[modinfo.NormalizeID(id)]
}

// Mods returns every known mod: loaded mods in load order first, then the rest
// sorted by id.
func (o *Orchestrator) Mods() []*Mod {
	o.modsMu.RLock()
	out := make([]*Mod, 0, len(o.mods))
	for _, m := range o.mods {
		out = append(out, m)
	}
	o.modsMu.RUnlock()

	slices.SortFunc(out, func(a, b *Mod) int {
		ai, bi := a.LoadIndex(), b.LoadIndex()
		al, bl := a.State() != StateUnloaded, b.State() != StateUnloaded
		switch {
		case al && bl:
			return ai - bi
		case al:
			return -1
		case bl:
			return 1
		}
		if a.Key() < b.Key() {
			return -1
		}
		if a.Key() > b.Key() {
			return 1
		}
		return 0
	})
	return out
}

func (o *Orchestrator) lookup(id string) (*Mod, error) {
	m := o.Mod(id)
	if m == nil {
		return nil, &ModNotFoundError{ID: id}
	}
	return m, nil
}

// transition moves m to "to" and emits the event.
func (o *Orchestrator) transition(m *Mod, to State, cause error) {
	o.emit(m, m.setState(to), to, cause)
}

func (o *Orchestrator) emit(m *Mod, from, to State, cause error) {
	o.sink.Emit(telemetry.LifecycleTransition{
		Mod:  m.ID(),
		From: from.String(),
		To:   to.String(),
		Err:  cause,
	})
}
