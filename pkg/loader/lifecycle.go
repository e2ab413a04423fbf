// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/BomberFish/geode/pkg/hook"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/resolver"
)

// LoadAll loads every resolved mod that is not loaded yet, in resolution order.
// A mod whose load fails is left Unloaded and the rest carry on; mods that
// require it fail with DependencyNotLoadedError. Mods listed in Options.Disabled
// are disabled once loaded. The context is checked between mods only.
func (o *Orchestrator) LoadAll(ctx context.Context) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	return o.loadAllLocked(ctx)
}

func (o *Orchestrator) loadAllLocked(ctx context.Context) error {
	if o.resolution == nil {
		return fmt.Errorf("%w: nothing has been resolved yet", ErrNotResolved)
	}

	var errs []error
	for _, key := range o.resolution.Order {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		m := o.Mod(key)
		if m == nil || m.State() != StateUnloaded {
			continue
		}
		if err := o.loadLocked(ctx, m); err != nil {
			errs = append(errs, err)
			continue
		}
		if o.disabled[key] {
			if err := o.setEnabledLocked(m, false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Load loads a single mod. Its required dependencies must already be loaded.
func (o *Orchestrator) Load(ctx context.Context, id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	m, err := o.lookup(id)
	if err != nil {
		return err
	}
	return o.loadLocked(ctx, m)
}

func (o *Orchestrator) loadLocked(ctx context.Context, m *Mod) error {
	if st := m.State(); st != StateUnloaded {
		return &InvalidTransitionError{ModID: m.ID(), From: st, To: StateLoading}
	}

	rec := o.resolution.Record(m.Key())
	if rec == nil || rec.State != resolver.StateResolved {
		var cause error
		if rec != nil {
			cause = rec.Err()
		}
		return o.refuse(m, &NotResolvedError{ModID: m.ID(), Cause: cause})
	}
	for _, dep := range rec.Dependencies {
		if !dep.IsRequired {
			continue
		}
		if d := o.Mod(dep.ResolvedID); d == nil || !d.State().Loaded() {
			return o.refuse(m, &DependencyNotLoadedError{ModID: m.ID(), DependencyID: dep.TargetID})
		}
	}

	m.mu.Lock()
	m.err = nil
	m.installErr = nil
	m.mu.Unlock()
	o.transition(m, StateLoading, nil)

	if err := o.runSetup(ctx, m); err != nil {
		from, handles := m.retire(StateUnloaded)
		if rerr := o.removeHooks(handles); rerr != nil {
			err = errors.Join(err, rerr)
		}
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		o.emit(m, from, StateUnloaded, err)
		return err
	}

	m.mu.Lock()
	m.loadIndex = o.loadSeq
	m.mu.Unlock()
	o.loadSeq++
	o.transition(m, StateEnabled, nil)
	return nil
}

// refuse records err as the reason m was not loaded.
func (o *Orchestrator) refuse(m *Mod, err error) error {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return err
}

func (o *Orchestrator) runSetup(ctx context.Context, m *Mod) (err error) {
	entry := o.entrypoint(m)
	if entry == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &SetupError{ModID: m.ID(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := entry.Setup(ctx, &API{orch: o, mod: m}); err != nil {
		return &SetupError{ModID: m.ID(), Cause: err}
	}
	m.mu.Lock()
	installErr := m.installErr
	m.mu.Unlock()
	if installErr != nil {
		return &SetupError{ModID: m.ID(), Cause: installErr}
	}
	return nil
}

// removeHooks removes handles newest first.
func (o *Orchestrator) removeHooks(handles []*hook.Handle) error {
	var errs []error
	for _, h := range slices.Backward(handles) {
		if err := o.engine.Remove(h); err != nil && !errors.Is(err, hook.ErrHandleNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enable turns a disabled mod's hooks back on.
func (o *Orchestrator) Enable(id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	m, err := o.lookup(id)
	if err != nil {
		return err
	}
	return o.setEnabledLocked(m, true)
}

// Disable turns a loaded mod's hooks off without removing them. The mod's
// hooks are skipped by dispatch until Enable is called.
func (o *Orchestrator) Disable(id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	m, err := o.lookup(id)
	if err != nil {
		return err
	}
	return o.setEnabledLocked(m, false)
}

func (o *Orchestrator) setEnabledLocked(m *Mod, enable bool) error {
	if !m.desc.SupportsDisabling {
		return &CapabilityNotSupportedError{ModID: m.ID(), Capability: CapabilityDisabling}
	}
	from, to := StateEnabled, StateDisabled
	if enable {
		from, to = StateDisabled, StateEnabled
	}

	m.mu.Lock()
	st := m.State()
	if st == to {
		m.mu.Unlock()
		return nil
	}
	if st != from {
		m.mu.Unlock()
		return &InvalidTransitionError{ModID: m.ID(), From: st, To: to}
	}
	var errs []error
	for _, h := range m.handles {
		if err := o.engine.SetEnabled(h, enable); err != nil {
			errs = append(errs, err)
		}
	}
	m.setState(to)
	m.mu.Unlock()

	o.emit(m, from, to, nil)
	return errors.Join(errs...)
}

// Unload removes a loaded mod's hooks in reverse installation order and runs its
// Teardown, if the entrypoint has one. It is refused while any loaded mod still
// requires the mod; in that case nothing changes.
func (o *Orchestrator) Unload(ctx context.Context, id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	m, err := o.lookup(id)
	if err != nil {
		return err
	}
	return o.unloadLocked(ctx, m)
}

func (o *Orchestrator) unloadLocked(ctx context.Context, m *Mod) error {
	if !m.desc.SupportsUnloading {
		return &CapabilityNotSupportedError{ModID: m.ID(), Capability: CapabilityUnloading}
	}
	if st := m.State(); !st.Loaded() {
		return &InvalidTransitionError{ModID: m.ID(), From: st, To: StateUnloading}
	}
	if deps := o.loadedDependents(m.Key()); len(deps) > 0 {
		return &DependentsStillLoadedError{ModID: m.ID(), Dependents: deps}
	}

	from, handles := m.retire(StateUnloading)
	o.emit(m, from, StateUnloading, nil)

	var errs []error
	if err := o.removeHooks(handles); err != nil {
		errs = append(errs, err)
	}
	if u, ok := o.entrypoint(m).(Unloader); ok {
		if err := teardown(ctx, m, u); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	m.mu.Lock()
	m.loadIndex = -1
	m.err = err
	m.mu.Unlock()
	o.transition(m, StateUnloaded, err)
	return err
}

func teardown(ctx context.Context, m *Mod, u Unloader) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("teardown of mod %q: panic: %v", m.ID(), r)
		}
	}()
	if err := u.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown of mod %q: %w", m.ID(), err)
	}
	return nil
}

// loadedDependents returns the ids of loaded or loading mods that require key.
func (o *Orchestrator) loadedDependents(key string) []string {
	o.modsMu.RLock()
	defer o.modsMu.RUnlock()

	var out []string
	for _, other := range o.mods {
		if other.State() == StateUnloaded || other.Key() == key {
			continue
		}
		for _, dep := range other.desc.Requires() {
			if modinfo.NormalizeID(dep.ID) == key {
				out = append(out, other.ID())
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

// Reload unloads every mod that supports unloading, newest first, resolves descs
// from scratch and loads again. Mods that cannot be unloaded keep running and
// keep their runtime instance. The returned resolution is the new one.
func (o *Orchestrator) Reload(ctx context.Context, descs []*modinfo.Descriptor) (*resolver.Resolution, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	var errs []error
	for _, m := range slices.Backward(o.loadedMods()) {
		if !m.desc.SupportsUnloading {
			continue
		}
		err := o.unloadLocked(ctx, m)
		if err != nil && !errors.Is(err, ErrDependentsStillLoaded) {
			errs = append(errs, err)
		}
	}

	res := o.resolveLocked(descs)
	if err := o.loadAllLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// loadedMods returns the loaded mods in load order.
func (o *Orchestrator) loadedMods() []*Mod {
	var out []*Mod
	for _, m := range o.Mods() {
		if m.State().Loaded() {
			out = append(out, m)
		}
	}
	return out
}
