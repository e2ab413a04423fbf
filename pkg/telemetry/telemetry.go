// SPDX-License-Identifier: MPL-2.0

// Package telemetry carries structured events out of the resolver, the hook engine
// and the load orchestrator.
//
// Library packages never log. They emit typed events to a [Sink] supplied by the
// host; the CLI plugs in a [LogSink], tests use a [Recorder], and everything else
// defaults to [Nop].
package telemetry

import (
	"time"
)

const (
	// KindResolutionStarted is emitted when the resolver begins a pass.
	KindResolutionStarted Kind = "resolution_started"
	// KindResolutionFinished is emitted with the outcome of a resolver pass.
	KindResolutionFinished Kind = "resolution_finished"
	// KindHookInstalled is emitted after a hook joins a chain.
	KindHookInstalled Kind = "hook_installed"
	// KindHookRemoved is emitted after a hook leaves a chain.
	KindHookRemoved Kind = "hook_removed"
	// KindHookToggled is emitted when a hook is enabled or disabled in place.
	KindHookToggled Kind = "hook_toggled"
	// KindLifecycleTransition is emitted on every mod lifecycle state change.
	KindLifecycleTransition Kind = "lifecycle_transition"
)

type (
	// Kind names an event type.
	Kind string

	// Event is implemented by every telemetry event.
	Event interface {
		Kind() Kind
	}

	// Sink receives events. Implementations must be safe for concurrent use:
	// hook events are emitted from whichever goroutine installs or removes a hook.
	Sink interface {
		Emit(Event)
	}

	// ResolutionStarted opens a resolver pass over Mods descriptors.
	ResolutionStarted struct {
		Mods int
	}

	// ResolutionFinished reports the load order and the final state of every mod.
	ResolutionFinished struct {
		Order    []string
		States   map[string]string
		Failures int
		Duration time.Duration
	}

	// HookInstalled reports a new hook on Target owned by Owner.
	HookInstalled struct {
		Handle   string
		Owner    string
		Target   string
		Priority int
		// ChainLen is the number of hooks on the target after the install.
		ChainLen int
		Enabled  bool
	}

	// HookRemoved reports a hook leaving Target. Restored is true when it was the
	// last hook and the original function was put back.
	HookRemoved struct {
		Handle   string
		Owner    string
		Target   string
		Restored bool
	}

	// HookToggled reports a hook being enabled or disabled without removal.
	HookToggled struct {
		Handle  string
		Owner   string
		Target  string
		Enabled bool
	}

	// LifecycleTransition reports a mod moving between lifecycle states. Err is set
	// when the transition was caused by a failure (rollback to Unloaded).
	LifecycleTransition struct {
		Mod  string
		From string
		To   string
		Err  error
	}
)

// Kind implements Event.
func (ResolutionStarted) Kind() Kind { return KindResolutionStarted }

// Kind implements Event.
func (ResolutionFinished) Kind() Kind { return KindResolutionFinished }

// Kind implements Event.
func (HookInstalled) Kind() Kind { return KindHookInstalled }

// Kind implements Event.
func (HookRemoved) Kind() Kind { return KindHookRemoved }

// Kind implements Event.
func (HookToggled) Kind() Kind { return KindHookToggled }

// Kind implements Event.
func (LifecycleTransition) Kind() Kind { return KindLifecycleTransition }
