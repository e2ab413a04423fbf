// SPDX-License-Identifier: MPL-2.0

// Package hook composes many interceptors of the same host function into one
// ordered chain.
//
// Each target is redirected at most once, on the first [Engine.Install]; later
// installs only insert into the target's [Chain]. When the host calls the target,
// the highest-priority enabled hook runs first and receives a [Next] that calls
// the next lower-priority hook, or the captured original once the chain is
// exhausted. A hook may run code around next, change its result, or not call it
// at all to replace the host behavior outright.
//
// Chains are immutable snapshots published atomically. Dispatch never takes a
// lock, so a hook removed while another goroutine is inside the chain does not
// disturb that call: it finishes on the snapshot it started with.
//
// Machine-level redirection lives behind the [Patcher] interface. [FuncTable] is
// the portable implementation, a table of host functions that host code calls
// through.
package hook

import (
	"fmt"
	"strings"
)

type (
	// Convention describes the calling convention of a target (e.g. "cdecl",
	// "thiscall"). It takes part in the target's identity.
	Convention string

	// Target identifies one interceptable host function.
	Target struct {
		// Symbol names the function. Either Symbol or Address must be set.
		Symbol     string
		Convention Convention
		// Address is the entry point, when the host exposes one.
		Address uintptr
	}

	// Next calls the rest of the chain: the next lower-priority enabled hook, or
	// the original function.
	Next func(args ...any) any

	// Func is a hook body.
	Func func(next Next, args ...any) any

	// Trampoline invokes a function with the host's calling convention already
	// handled. The captured original of a target is a Trampoline.
	Trampoline func(args ...any) any

	// Hook is one mod's intercept for a target.
	Hook struct {
		// Owner is the id of the mod that installed the hook.
		Owner string
		// Priority orders the chain: higher runs first (further from the original).
		// Equal priorities run in installation order.
		Priority    int
		Replacement Func
		// Disabled installs the hook already switched off. It joins the chain
		// without ever being dispatched until enabled.
		Disabled bool
	}

	// Patcher performs the platform-specific redirection of a target.
	Patcher interface {
		// CaptureOriginal returns a trampoline that invokes the pristine function.
		CaptureOriginal(target Target) (Trampoline, error)
		// Redirect sends every call of target to dispatcher.
		Redirect(target Target, dispatcher Trampoline) error
		// Restore undoes Redirect so the pristine function runs again.
		Restore(target Target) error
	}
)

// Key returns the stable identity of the target: the symbol (or the address when
// no symbol is given), qualified by the calling convention.
func (t Target) Key() string {
	var b strings.Builder
	switch {
	case t.Symbol != "":
		b.WriteString(t.Symbol)
	case t.Address != 0:
		fmt.Fprintf(&b, "0x%x", t.Address)
	default:
		return ""
	}
	if t.Convention != "" {
		b.WriteByte('@')
		b.WriteString(string(t.Convention))
	}
	return b.String()
}

// String returns the key, or "<invalid target>".
func (t Target) String() string {
	if k := t.Key(); k != "" {
		return k
	}
	return "<invalid target>"
}

// Validate checks that the target can be identified.
func (t Target) Validate() error {
	if t.Key() == "" {
		return fmt.Errorf("%w: target needs a symbol or an address", ErrInvalidTarget)
	}
	return nil
}

// Sym is shorthand for a target identified by symbol only.
func Sym(symbol string) Target {
	return Target{Symbol: symbol}
}
