// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"fmt"
	"sync"

	"github.com/BomberFish/geode/pkg/telemetry"
)

type (
	// Engine owns every chain and the patcher that splices them into the host.
	Engine struct {
		patcher Patcher
		sink    telemetry.Sink

		// mu guards chains. Creating or dropping a chain (and removal, which may
		// drop one) is exclusive; installing into an existing chain only reads.
		mu     sync.RWMutex
		chains map[string]*Chain
	}

	// Handle refers to one installed hook. It does not own the hook; it is only
	// used to remove or toggle it.
	Handle struct {
		e *entry
	}

	// EngineOption configures an Engine.
	EngineOption func(*Engine)
)

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) EngineOption {
	return func(e *Engine) {
		e.sink = telemetry.OrNop(s)
	}
}

// NewEngine creates an engine that patches targets through p.
func NewEngine(p Patcher, opts ...EngineOption) *Engine {
	e := &Engine{
		patcher: p,
		sink:    telemetry.Nop,
		chains:  make(map[string]*Chain),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the handle's unique id.
func (h *Handle) ID() string { return h.e.id.String() }

// Owner returns the id of the mod that installed the hook.
func (h *Handle) Owner() string { return h.e.hook.Owner }

// Target returns the hooked target.
func (h *Handle) Target() Target { return h.e.chain.target }

// Priority returns the hook priority.
func (h *Handle) Priority() int { return h.e.hook.Priority }

// Enabled reports whether the hook currently takes part in dispatch.
func (h *Handle) Enabled() bool { return h.e.enabled.Load() }

// Removed reports whether the hook was removed.
func (h *Handle) Removed() bool { return h.e.removed.Load() }

// Install adds h to target's chain. The first install for a target captures the
// original and redirects the target to the chain; any failure there is a
// *TargetUnpatchableError and leaves the target untouched.
func (e *Engine) Install(target Target, h Hook) (*Handle, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if h.Replacement == nil {
		return nil, fmt.Errorf("%w: hook on %s from %q has no replacement", ErrInvalidHook, target, h.Owner)
	}
	key := target.Key()

	e.mu.RLock()
	c := e.chains[key]
	var ent *entry
	if c != nil {
		ent = c.insert(h)
	}
	e.mu.RUnlock()

	if ent == nil {
		var err error
		if ent, err = e.installFirst(target, key, h); err != nil {
			return nil, err
		}
	}

	e.sink.Emit(telemetry.HookInstalled{
		Handle:   ent.id.String(),
		Owner:    h.Owner,
		Target:   key,
		Priority: h.Priority,
		ChainLen: ent.chain.Len(),
		Enabled:  !h.Disabled,
	})
	return &Handle{e: ent}, nil
}

func (e *Engine) installFirst(target Target, key string, h Hook) (*entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Another install may have created the chain while the lock was released.
	if c := e.chains[key]; c != nil {
		return c.insert(h), nil
	}

	original, err := e.patcher.CaptureOriginal(target)
	if err != nil {
		return nil, unpatchable(target, "capturing the original failed", err)
	}
	if original == nil {
		return nil, unpatchable(target, "patcher returned no original", nil)
	}

	c := newChain(target, original)
	ent := c.insert(h)
	if err := e.patcher.Redirect(target, c.dispatch); err != nil {
		return nil, unpatchable(target, "redirect failed", err)
	}
	e.chains[key] = c
	return ent, nil
}

// Remove takes the hook out of its chain. Removing the last hook of a target
// restores the original function. Removing a handle twice returns ErrHandleNotFound.
func (e *Engine) Remove(h *Handle) error {
	if h == nil || h.e == nil {
		return ErrHandleNotFound
	}
	ent := h.e
	key := ent.chain.target.Key()

	e.mu.Lock()
	c := e.chains[key]
	if c != ent.chain {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandleNotFound, ent.id)
	}
	remaining, ok := c.remove(ent)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandleNotFound, ent.id)
	}

	var restoreErr error
	restored := false
	if remaining == 0 {
		// The chain is dropped even when restore fails: the target is no longer
		// ours, and the next install captures whatever it holds now.
		restoreErr = e.patcher.Restore(c.target)
		restored = restoreErr == nil
		delete(e.chains, key)
	}
	e.mu.Unlock()

	e.sink.Emit(telemetry.HookRemoved{
		Handle:   ent.id.String(),
		Owner:    ent.hook.Owner,
		Target:   key,
		Restored: restored,
	})

	if restoreErr != nil {
		return unpatchable(c.target, "restoring the original failed", restoreErr)
	}
	return nil
}

// SetEnabled toggles a hook in place. A disabled hook is skipped by dispatch but
// keeps its position in the chain.
func (e *Engine) SetEnabled(h *Handle, enabled bool) error {
	if h == nil || h.e == nil || h.e.removed.Load() {
		return ErrHandleNotFound
	}
	if h.e.enabled.Swap(enabled) == enabled {
		return nil
	}
	e.sink.Emit(telemetry.HookToggled{
		Handle:  h.e.id.String(),
		Owner:   h.e.hook.Owner,
		Target:  h.e.chain.target.Key(),
		Enabled: enabled,
	})
	return nil
}

// Call dispatches target's chain as if the host had called it.
func (e *Engine) Call(target Target, args ...any) (any, error) {
	c := e.chain(target)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotHooked, target)
	}
	return c.dispatch(args...), nil
}

// CallOriginal invokes the captured original of target, bypassing every hook.
func (e *Engine) CallOriginal(target Target, args ...any) (any, error) {
	c := e.chain(target)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotHooked, target)
	}
	return c.original(args...), nil
}

// Chain returns target's chain, or nil when it is not hooked.
func (e *Engine) Chain(target Target) *Chain {
	return e.chain(target)
}

// Targets returns the keys of every hooked target.
func (e *Engine) Targets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.chains))
	for k := range e.chains {
		out = append(out, k)
	}
	return out
}

func (e *Engine) chain(target Target) *Chain {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chains[target.Key()]
}
