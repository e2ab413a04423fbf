// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BomberFish/geode/pkg/version"
)

var (
	// ErrStructural matches every problem with the shape of the mod set itself
	// (duplicate ids, cycles, early-load ordering) rather than with one dependency.
	ErrStructural = errors.New("structural error")

	// ErrDuplicateID is the sentinel error wrapped by DuplicateIDError.
	ErrDuplicateID = errors.New("duplicate mod id")
	// ErrCycle is the sentinel error wrapped by CycleError.
	ErrCycle = errors.New("dependency cycle")
	// ErrInvalidEarlyLoadOrdering is the sentinel error wrapped by InvalidEarlyLoadOrderingError.
	ErrInvalidEarlyLoadOrdering = errors.New("early-load mod depends on a mod that does not load early")

	// ErrMissingDependency is the sentinel error wrapped by MissingDependencyError.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrVersionMismatch is the sentinel error wrapped by VersionMismatchError.
	ErrVersionMismatch = errors.New("dependency version mismatch")
	// ErrUnresolvedDependency is the sentinel error wrapped by UnresolvedDependencyError.
	ErrUnresolvedDependency = errors.New("dependency did not resolve")
)

type (
	// DuplicateIDError is reported when several descriptors share one id.
	// Every one of them is excluded.
	DuplicateIDError struct {
		ID string
		// Sources names every descriptor that declared the id, in declaration order.
		Sources []string
	}

	// CycleError is reported for every mod that is part of a required-dependency cycle.
	CycleError struct {
		// Members of the cycle, in declaration order.
		Members []string
	}

	// InvalidEarlyLoadOrderingError is reported when an early-load mod requires a mod
	// that does not load early.
	InvalidEarlyLoadOrderingError struct {
		ModID    string
		TargetID string
	}

	// MissingDependencyError is reported when a dependency target is not present.
	MissingDependencyError struct {
		ModID    string
		TargetID string
	}

	// VersionMismatchError is reported when the target is present with another version.
	VersionMismatchError struct {
		ModID    string
		TargetID string
		Required version.Constraint
		Found    version.Version
	}

	// UnresolvedDependencyError is reported when a required target is present but
	// itself failed to resolve. Cause is that target's own reason.
	UnresolvedDependencyError struct {
		ModID    string
		TargetID string
		Cause    error
	}
)

// Error implements the error interface.
func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate mod id %q declared by %s", e.ID, strings.Join(e.Sources, " and "))
}

// Is matches ErrDuplicateID and ErrStructural.
func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID || target == ErrStructural
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Members) == 1 {
		return fmt.Sprintf("dependency cycle detected: %s depends on itself", e.Members[0])
	}
	return fmt.Sprintf("dependency cycle detected between %s", strings.Join(e.Members, ", "))
}

// Is matches ErrCycle and ErrStructural.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle || target == ErrStructural
}

// Error implements the error interface.
func (e *InvalidEarlyLoadOrderingError) Error() string {
	return fmt.Sprintf("mod %q loads early but requires %q, which does not", e.ModID, e.TargetID)
}

// Is matches ErrInvalidEarlyLoadOrdering and ErrStructural.
func (e *InvalidEarlyLoadOrderingError) Is(target error) bool {
	return target == ErrInvalidEarlyLoadOrdering || target == ErrStructural
}

// Error implements the error interface.
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("mod %q depends on %q, which is not installed", e.ModID, e.TargetID)
}

// Unwrap returns ErrMissingDependency for errors.Is.
func (e *MissingDependencyError) Unwrap() error { return ErrMissingDependency }

// Error implements the error interface.
func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("mod %q requires %s %s, but %s is installed", e.ModID, e.TargetID, e.Required, e.Found)
}

// Unwrap returns ErrVersionMismatch for errors.Is.
func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// Error implements the error interface.
func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("mod %q depends on %q, which did not resolve: %v", e.ModID, e.TargetID, e.Cause)
}

// Is matches ErrUnresolvedDependency.
func (e *UnresolvedDependencyError) Is(target error) bool {
	return target == ErrUnresolvedDependency
}

// Unwrap returns the target's own reason, so the chain can be walked down to the root cause.
func (e *UnresolvedDependencyError) Unwrap() error { return e.Cause }

// RootCause follows UnresolvedDependencyError chains down to the first problem that
// is not a cascade.
func RootCause(err error) error {
	for {
		var ue *UnresolvedDependencyError
		if !errors.As(err, &ue) || ue.Cause == nil {
			return err
		}
		err = ue.Cause
	}
}
