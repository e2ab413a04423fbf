// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrModNotFound is the sentinel error wrapped by ModNotFoundError.
	ErrModNotFound = errors.New("mod not found")
	// ErrCapabilityNotSupported is the sentinel error wrapped by CapabilityNotSupportedError.
	ErrCapabilityNotSupported = errors.New("capability not supported")
	// ErrDependentsStillLoaded is the sentinel error wrapped by DependentsStillLoadedError.
	ErrDependentsStillLoaded = errors.New("dependents still loaded")
	// ErrInvalidTransition is the sentinel error wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNotResolved is the sentinel error wrapped by NotResolvedError.
	ErrNotResolved = errors.New("mod is not resolved")
	// ErrDependencyNotLoaded is the sentinel error wrapped by DependencyNotLoadedError.
	ErrDependencyNotLoaded = errors.New("dependency not loaded")
	// ErrSetupFailed is the sentinel error wrapped by SetupError.
	ErrSetupFailed = errors.New("mod setup failed")
	// ErrModInactive is returned when a mod that is not loaded tries to install hooks.
	ErrModInactive = errors.New("mod is not active")
)

const (
	// CapabilityDisabling is the capability checked by Enable and Disable.
	CapabilityDisabling Capability = "disabling"
	// CapabilityUnloading is the capability checked by Unload.
	CapabilityUnloading Capability = "unloading"
)

type (
	// Capability names an optional lifecycle feature a mod declares in its manifest.
	Capability string

	// ModNotFoundError is returned for an id the orchestrator does not know.
	ModNotFoundError struct {
		ID string
	}

	// CapabilityNotSupportedError is returned when a mod does not declare the
	// capability a transition needs. State is left unchanged.
	CapabilityNotSupportedError struct {
		ModID      string
		Capability Capability
	}

	// DependentsStillLoadedError is returned when unloading a mod that loaded mods
	// still require. Nothing is torn down.
	DependentsStillLoadedError struct {
		ModID      string
		Dependents []string
	}

	// InvalidTransitionError is returned when a transition does not start from an
	// allowed state.
	InvalidTransitionError struct {
		ModID string
		From  State
		To    State
	}

	// NotResolvedError is returned when loading a mod the last resolution did not resolve.
	NotResolvedError struct {
		ModID string
		Cause error
	}

	// DependencyNotLoadedError is returned when a required dependency of the mod
	// being loaded is not loaded, typically because its own load failed.
	DependencyNotLoadedError struct {
		ModID        string
		DependencyID string
	}

	// SetupError wraps the error (or panic) returned by a mod's setup.
	SetupError struct {
		ModID string
		Cause error
	}
)

// Error implements the error interface.
func (e *ModNotFoundError) Error() string {
	return fmt.Sprintf("mod %q not found", e.ID)
}

// Unwrap returns ErrModNotFound for errors.Is.
func (e *ModNotFoundError) Unwrap() error { return ErrModNotFound }

// Error implements the error interface.
func (e *CapabilityNotSupportedError) Error() string {
	return fmt.Sprintf("mod %q does not support %s", e.ModID, e.Capability)
}

// Unwrap returns ErrCapabilityNotSupported for errors.Is.
func (e *CapabilityNotSupportedError) Unwrap() error { return ErrCapabilityNotSupported }

// Error implements the error interface.
func (e *DependentsStillLoadedError) Error() string {
	return fmt.Sprintf("cannot unload mod %q: still required by %s", e.ModID, strings.Join(e.Dependents, ", "))
}

// Unwrap returns ErrDependentsStillLoaded for errors.Is.
func (e *DependentsStillLoadedError) Unwrap() error { return ErrDependentsStillLoaded }

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("mod %q cannot go from %s to %s", e.ModID, e.From, e.To)
}

// Unwrap returns ErrInvalidTransition for errors.Is.
func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// Error implements the error interface.
func (e *NotResolvedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("mod %q is not resolved", e.ModID)
	}
	return fmt.Sprintf("mod %q is not resolved: %v", e.ModID, e.Cause)
}

// Is matches ErrNotResolved.
func (e *NotResolvedError) Is(target error) bool { return target == ErrNotResolved }

// Unwrap returns the resolver's reason.
func (e *NotResolvedError) Unwrap() error { return e.Cause }

// Error implements the error interface.
func (e *DependencyNotLoadedError) Error() string {
	return fmt.Sprintf("mod %q requires %q, which is not loaded", e.ModID, e.DependencyID)
}

// Unwrap returns ErrDependencyNotLoaded for errors.Is.
func (e *DependencyNotLoadedError) Unwrap() error { return ErrDependencyNotLoaded }

// Error implements the error interface.
func (e *SetupError) Error() string {
	return fmt.Sprintf("setup of mod %q failed: %v", e.ModID, e.Cause)
}

// Is matches ErrSetupFailed.
func (e *SetupError) Is(target error) bool { return target == ErrSetupFailed }

// Unwrap returns the setup's own error.
func (e *SetupError) Unwrap() error { return e.Cause }
