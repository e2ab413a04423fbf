// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BomberFish/geode/pkg/hook"
	"github.com/BomberFish/geode/pkg/modinfo"
)

// API is the handle a mod's code uses to talk to the loader. It stays valid for
// as long as the mod is loaded.
type API struct {
	orch *Orchestrator
	mod  *Mod
}

// ModID returns the id of the mod this API belongs to.
func (a *API) ModID() string { return a.mod.ID() }

// Descriptor returns the mod's own descriptor.
func (a *API) Descriptor() *modinfo.Descriptor { return a.mod.desc }

// Hook installs fn on target. The hook is owned by the mod: it is removed when
// the mod unloads or its setup fails, and follows the mod when it is disabled.
// A failed install during setup fails the whole load, even if Setup ignores the error.
func (a *API) Hook(target hook.Target, priority int, fn hook.Func) (*hook.Handle, error) {
	m := a.mod
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.State()
	if st != StateLoading && !st.Loaded() {
		return nil, fmt.Errorf("%w: %s is %s", ErrModInactive, m.ID(), st)
	}

	h, err := a.orch.engine.Install(target, hook.Hook{
		Owner:       m.ID(),
		Priority:    priority,
		Replacement: fn,
		Disabled:    st == StateDisabled,
	})
	if err != nil {
		if st == StateLoading {
			m.installErr = errors.Join(m.installErr, err)
		}
		return nil, err
	}
	m.handles = append(m.handles, h)
	return h, nil
}

// Unhook removes one of the mod's own hooks before the mod unloads.
func (a *API) Unhook(h *hook.Handle) error {
	m := a.mod
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.Index(m.handles, h)
	if idx < 0 {
		return hook.ErrHandleNotFound
	}
	err := a.orch.engine.Remove(h)
	if errors.Is(err, hook.ErrHandleNotFound) {
		return err
	}
	// Any other failure comes from restoring the target; the hook itself is gone.
	m.handles = slices.Delete(m.handles, idx, idx+1)
	return err
}

// Loaded reports whether the mod id is currently loaded (enabled or disabled).
// Mods use it to check for optional dependencies.
func (a *API) Loaded(id string) bool {
	other := a.orch.Mod(id)
	return other != nil && other.State().Loaded()
}
