// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/version"
)

const (
	// StateUnloaded is the initial state, before a resolver pass looked at the mod.
	StateUnloaded ResolveState = iota
	// StateResolving means the pass is still waiting on required dependencies.
	StateResolving
	// StateResolved means every required dependency resolved.
	StateResolved
	// StateUnresolved is terminal for a pass; see the record's Problems.
	StateUnresolved
)

type (
	// ResolveState is the resolution state of a mod or of one of its dependencies.
	ResolveState uint8

	// Dependency is one declared dependency together with its resolution outcome.
	Dependency struct {
		// TargetID is the id as declared by the dependent.
		TargetID   string
		Constraint version.Constraint
		IsRequired bool
		State      ResolveState
		// ResolvedID is the identity key of the target once it resolved. Targets are
		// referenced by id only; look them up in Resolution.Mods.
		ResolvedID string
		// Problem explains an Unresolved dependency. For optional dependencies it is
		// informational and never blocks the dependent.
		Problem error
	}

	// Record is the resolution record of one mod id.
	Record struct {
		Descriptor   *modinfo.Descriptor
		State        ResolveState
		Dependencies []Dependency
		// Problems explains an Unresolved state, most direct reason first.
		Problems []error
	}
)

// String returns the lower-case state name.
func (s ResolveState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Key returns the identity key of the mod.
func (r *Record) Key() string {
	return r.Descriptor.Key()
}

// Err returns the primary reason the mod is Unresolved, or nil.
func (r *Record) Err() error {
	if len(r.Problems) == 0 {
		return nil
	}
	return r.Problems[0]
}

// Reset returns the record to StateUnloaded so it can take part in another pass.
func (r *Record) Reset() {
	r.State = StateUnloaded
	r.Problems = nil
	for i := range r.Dependencies {
		d := &r.Dependencies[i]
		d.State = StateUnloaded
		d.ResolvedID = ""
		d.Problem = nil
	}
}

func (r *Record) fail(err error) {
	r.State = StateUnresolved
	for _, p := range r.Problems {
		if p == err {
			return
		}
	}
	r.Problems = append(r.Problems, err)
}

func (d *Dependency) fail(err error) {
	d.State = StateUnresolved
	if d.Problem == nil {
		d.Problem = err
	}
}

func (d *Dependency) key() string {
	return modinfo.NormalizeID(d.TargetID)
}

// isStructural reports whether err itself is structural. Cascades whose root cause
// is structural do not count.
func isStructural(err error) bool {
	switch err.(type) {
	case *DuplicateIDError, *CycleError, *InvalidEarlyLoadOrderingError:
		return true
	default:
		return false
	}
}
