// SPDX-License-Identifier: MPL-2.0

// Package version implements the version value types used by mod manifests.
//
// A [Version] is a plain major.minor.patch triple. A [Constraint] is the requirement
// a dependency places on another mod's version. Only exact matching is supported:
// a constraint is satisfied when the installed version equals the required one.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidConstraint is the sentinel error wrapped by InvalidConstraintError.
	ErrInvalidConstraint = errors.New("invalid version constraint")
)

type (
	// Version is a semantic version without pre-release or build metadata.
	// The zero value is "0.0.0".
	Version struct {
		Major uint32
		Minor uint32
		Patch uint32
	}

	// Constraint is a version requirement. It currently only expresses an exact version.
	Constraint struct {
		exact Version
	}

	// InvalidVersionError is returned when a version string cannot be parsed.
	InvalidVersionError struct {
		Value  string
		Reason string
	}

	// InvalidConstraintError is returned when a constraint string cannot be parsed.
	InvalidConstraintError struct {
		Value string
		Cause error
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid version %q", e.Value)
	}
	return fmt.Sprintf("invalid version %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidVersion for errors.Is.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Error implements the error interface.
func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("invalid version constraint %q: %v", e.Value, e.Cause)
}

// Unwrap returns ErrInvalidConstraint for errors.Is.
func (e *InvalidConstraintError) Unwrap() error { return ErrInvalidConstraint }

// New returns the version major.minor.patch.
func New(major, minor, patch uint32) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse parses "major.minor.patch". A leading "v" is accepted. Missing minor or
// patch components default to zero ("1.2" is "1.2.0"), matching how manifests in
// the wild are written.
func Parse(s string) (Version, error) {
	raw := s
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, &InvalidVersionError{Value: raw, Reason: "empty"}
	}

	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, &InvalidVersionError{Value: raw, Reason: "too many components"}
	}

	var nums [3]uint32
	for i, p := range parts {
		if p == "" {
			return Version{}, &InvalidVersionError{Value: raw, Reason: "empty component"}
		}
		if len(p) > 1 && p[0] == '0' {
			return Version{}, &InvalidVersionError{Value: raw, Reason: "leading zero"}
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, &InvalidVersionError{Value: raw, Reason: fmt.Sprintf("component %q is not a number", p)}
		}
		nums[i] = uint32(n)
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or +1 when v is lower than, equal to or higher than o.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpUint(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpUint(v.Minor, o.Minor)
	default:
		return cmpUint(v.Patch, o.Patch)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func cmpUint(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Exact returns a constraint satisfied only by v.
func Exact(v Version) Constraint {
	return Constraint{exact: v}
}

// ParseConstraint parses a constraint string. Only exact versions are accepted;
// an optional leading "=" is tolerated.
func ParseConstraint(s string) (Constraint, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "=")
	v, err := Parse(trimmed)
	if err != nil {
		return Constraint{}, &InvalidConstraintError{Value: s, Cause: err}
	}
	return Exact(v), nil
}

// Satisfies reports whether installed satisfies the constraint.
func (c Constraint) Satisfies(installed Version) bool {
	return c.exact == installed
}

// Version returns the version the constraint requires.
func (c Constraint) Version() Version { return c.exact }

// String returns the constraint in manifest notation.
func (c Constraint) String() string { return c.exact.String() }

// MarshalText implements encoding.TextMarshaler.
func (c Constraint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Constraint) UnmarshalText(b []byte) error {
	parsed, err := ParseConstraint(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
