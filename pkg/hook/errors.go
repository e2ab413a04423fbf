// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"errors"
	"fmt"
)

var (
	// ErrTargetUnpatchable is the sentinel error wrapped by TargetUnpatchableError.
	ErrTargetUnpatchable = errors.New("target cannot be patched")
	// ErrHandleNotFound is returned when removing or toggling a handle that is not
	// installed, including one that was already removed.
	ErrHandleNotFound = errors.New("hook handle not found")
	// ErrInvalidTarget is returned for a target with neither symbol nor address.
	ErrInvalidTarget = errors.New("invalid hook target")
	// ErrInvalidHook is returned for a hook without a replacement body.
	ErrInvalidHook = errors.New("invalid hook")
	// ErrNotHooked is returned by Engine.Call for a target without a chain.
	ErrNotHooked = errors.New("target is not hooked")
	// ErrUndefinedSymbol is returned by FuncTable.Call for an unknown target.
	ErrUndefinedSymbol = errors.New("undefined symbol")
)

// TargetUnpatchableError is returned when a target cannot be captured, redirected
// or restored, typically because something else modified it.
type TargetUnpatchableError struct {
	Target Target
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *TargetUnpatchableError) Error() string {
	msg := fmt.Sprintf("target %s cannot be patched: %s", e.Target, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches ErrTargetUnpatchable.
func (e *TargetUnpatchableError) Is(target error) bool {
	return target == ErrTargetUnpatchable
}

// Unwrap returns the underlying cause, if any.
func (e *TargetUnpatchableError) Unwrap() error { return e.Cause }

func unpatchable(t Target, reason string, cause error) error {
	var tu *TargetUnpatchableError
	if errors.As(cause, &tu) {
		return cause
	}
	return &TargetUnpatchableError{Target: t, Reason: reason, Cause: cause}
}
