// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type (
	// FuncTable is a portable Patcher. The host registers its hookable functions
	// with Define and calls them through Call; redirection swaps the table entry.
	FuncTable struct {
		mu      sync.Mutex
		entries map[string]*slot
	}

	slot struct {
		target Target
		// current is what Call runs. Identity (pointer equality) tells whether the
		// slot still holds what the table itself last put there.
		current atomic.Pointer[Trampoline]
		// captured is the function seen by CaptureOriginal; restore puts it back.
		captured *Trampoline
		// dispatcher is set while redirected.
		dispatcher *Trampoline
	}
)

// NewFuncTable creates an empty table.
func NewFuncTable() *FuncTable {
	return &FuncTable{entries: make(map[string]*slot)}
}

// Define registers (or overwrites) the host function for target. Overwriting a
// redirected target counts as an external modification: the engine's later
// Restore for it fails with a *TargetUnpatchableError.
func (t *FuncTable) Define(target Target, fn Trampoline) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: nil function for %s", ErrInvalidTarget, target)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entries[target.Key()]
	if s == nil {
		s = &slot{target: target}
		t.entries[target.Key()] = s
	}
	s.current.Store(&fn)
	return nil
}

// Call invokes whatever target currently points at.
func (t *FuncTable) Call(target Target, args ...any) (any, error) {
	t.mu.Lock()
	s := t.entries[target.Key()]
	t.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedSymbol, target)
	}
	fn := s.current.Load()
	return (*fn)(args...), nil
}

// Redirected reports whether target currently points at a dispatcher.
func (t *FuncTable) Redirected(target Target) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entries[target.Key()]
	return s != nil && s.dispatcher != nil && s.current.Load() == s.dispatcher
}

// CaptureOriginal implements Patcher.
func (t *FuncTable) CaptureOriginal(target Target) (Trampoline, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entries[target.Key()]
	if s == nil {
		return nil, &TargetUnpatchableError{Target: target, Reason: "symbol is not defined"}
	}
	if s.dispatcher != nil {
		return nil, &TargetUnpatchableError{Target: target, Reason: "target is already redirected"}
	}
	s.captured = s.current.Load()
	return *s.captured, nil
}

// Redirect implements Patcher.
func (t *FuncTable) Redirect(target Target, dispatcher Trampoline) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entries[target.Key()]
	if s == nil || s.captured == nil {
		return &TargetUnpatchableError{Target: target, Reason: "original was not captured"}
	}
	if s.current.Load() != s.captured {
		return &TargetUnpatchableError{Target: target, Reason: "modified since the original was captured"}
	}
	s.dispatcher = &dispatcher
	s.current.Store(s.dispatcher)
	return nil
}

// Restore implements Patcher.
func (t *FuncTable) Restore(target Target) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entries[target.Key()]
	if s == nil || s.dispatcher == nil {
		return &TargetUnpatchableError{Target: target, Reason: "target is not redirected"}
	}
	if s.current.Load() != s.dispatcher {
		s.dispatcher = nil
		s.captured = nil
		return &TargetUnpatchableError{Target: target, Reason: "modified externally while redirected"}
	}
	s.current.Store(s.captured)
	s.dispatcher = nil
	s.captured = nil
	return nil
}
