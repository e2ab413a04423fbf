// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/BomberFish/geode/pkg/hook"
	"github.com/BomberFish/geode/pkg/modinfo"
)

const (
	// StateUnloaded means the mod has no hooks installed and its setup has not run.
	StateUnloaded State = iota
	// StateLoading means the mod's setup is running.
	StateLoading
	// StateEnabled means the mod is loaded and its hooks take part in dispatch.
	StateEnabled
	// StateDisabled means the mod is loaded but its hooks are skipped.
	StateDisabled
	// StateUnloading means the mod's hooks are being removed.
	StateUnloading
)

type (
	// State is the lifecycle state of a mod.
	State int32

	// Entrypoint is the code side of a mod.
	Entrypoint interface {
		// Setup runs while the mod is loading. Hooks installed through api are
		// recorded against the mod; if Setup fails they are all removed again.
		Setup(ctx context.Context, api *API) error
	}

	// Unloader is implemented by entrypoints that need to release resources when
	// their mod unloads. Teardown runs after the mod's hooks were removed.
	Unloader interface {
		Teardown(ctx context.Context) error
	}

	// EntrypointFunc adapts a function to Entrypoint.
	EntrypointFunc func(ctx context.Context, api *API) error

	// Mod is the runtime instance of a resolved mod.
	Mod struct {
		desc  *modinfo.Descriptor
		entry Entrypoint
		state atomic.Int32

		// mu guards everything below.
		mu         sync.Mutex
		loadIndex  int
		handles    []*hook.Handle
		err        error
		installErr error
	}
)

// Setup implements Entrypoint.
func (f EntrypointFunc) Setup(ctx context.Context, api *API) error {
	return f(ctx, api)
}

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateUnloading:
		return "unloading"
	default:
		return "unknown"
	}
}

// Loaded reports whether s is Enabled or Disabled.
func (s State) Loaded() bool {
	return s == StateEnabled || s == StateDisabled
}

func newMod(desc *modinfo.Descriptor, entry Entrypoint) *Mod {
	return &Mod{desc: desc, entry: entry, loadIndex: -1}
}

// ID returns the mod id as declared.
func (m *Mod) ID() string { return m.desc.ID }

// Key returns the identity key of the mod.
func (m *Mod) Key() string { return m.desc.Key() }

// Descriptor returns the mod's descriptor.
func (m *Mod) Descriptor() *modinfo.Descriptor { return m.desc }

// State returns the current lifecycle state.
func (m *Mod) State() State { return State(m.state.Load()) }

// LoadIndex returns the ordinal of the mod's last successful load, or -1.
func (m *Mod) LoadIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadIndex
}

// Err returns the error of the last failed load, if any.
func (m *Mod) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Hooks returns the handles of the mod's installed hooks in installation order.
func (m *Mod) Hooks() []*hook.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.handles)
}

func (m *Mod) setState(s State) State {
	return State(m.state.Swap(int32(s)))
}

// retire moves the mod to s and takes its handles in one step, so no hook can be
// installed between the two.
func (m *Mod) retire(s State) (State, []*hook.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.setState(s)
	hs := m.handles
	m.handles = nil
	return from, hs
}
