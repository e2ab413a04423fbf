// SPDX-License-Identifier: MPL-2.0

package modinfo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/BomberFish/geode/pkg/version"
)

const (
	// MaxIDLength is the maximum length of a mod id.
	MaxIDLength = 128
)

var (
	// ErrInvalidID is the sentinel error wrapped by InvalidIDError.
	ErrInvalidID = errors.New("invalid mod id")
	// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
	ErrInvalidDescriptor = errors.New("invalid mod descriptor")

	idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

type (
	// Descriptor is the parsed manifest of one mod.
	Descriptor struct {
		// ID identifies the mod. Identity is case-insensitive; see Key.
		ID      string
		Version version.Version

		Name        string
		Developer   string
		Description string
		Details     string
		Changelog   string
		SupportInfo string
		Repository  string
		Binary      string
		Issues      *IssuesInfo

		Spritesheets []string
		// Settings holds the declared settings keyed by name, undecoded.
		Settings map[string]any

		// Dependencies keeps declaration order.
		Dependencies []DependencySpec

		SupportsDisabling bool
		SupportsUnloading bool
		NeedsEarlyLoad    bool

		// Source is the file the descriptor was parsed from (empty for built-in mods).
		Source string
	}

	// DependencySpec is one declared dependency on another mod.
	DependencySpec struct {
		ID       string
		Version  version.Constraint
		Required bool
	}

	// IssuesInfo tells users where to report problems with a mod.
	IssuesInfo struct {
		Info string
		URL  string
	}

	// InvalidIDError is returned when a mod id is not a valid token.
	InvalidIDError struct {
		Value string
	}

	// InvalidDescriptorError reports every problem found in a descriptor.
	InvalidDescriptorError struct {
		ID       string
		Problems []error
	}
)

// Error implements the error interface.
func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid mod id %q (must start with a letter or digit and contain only letters, digits, '.', '_' or '-', max %d chars)", e.Value, MaxIDLength)
}

// Unwrap returns ErrInvalidID for errors.Is.
func (e *InvalidIDError) Unwrap() error { return ErrInvalidID }

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("invalid descriptor for mod %q: %s", e.ID, strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidDescriptor for errors.Is.
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// ValidateID checks that id is a well-formed mod id.
func ValidateID(id string) error {
	if len(id) == 0 || len(id) > MaxIDLength || !idPattern.MatchString(id) {
		return &InvalidIDError{Value: id}
	}
	return nil
}

// NormalizeID returns the identity key of a mod id (ASCII lower case).
func NormalizeID(id string) string {
	return strings.ToLower(id)
}

// Key returns the normalized identity of the mod.
func (d *Descriptor) Key() string {
	return NormalizeID(d.ID)
}

// DisplayName returns Name, falling back to ID.
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Validate checks descriptors built in code. Parsed descriptors are already
// validated by the manifest schema.
func (d *Descriptor) Validate() error {
	var problems []error
	if err := ValidateID(d.ID); err != nil {
		problems = append(problems, err)
	}

	seen := make(map[string]bool, len(d.Dependencies))
	for i, dep := range d.Dependencies {
		if err := ValidateID(dep.ID); err != nil {
			problems = append(problems, fmt.Errorf("dependencies[%d]: %w", i, err))
			continue
		}
		key := NormalizeID(dep.ID)
		if seen[key] {
			problems = append(problems, fmt.Errorf("dependencies[%d]: %q declared more than once", i, dep.ID))
		}
		seen[key] = true
	}

	if len(problems) > 0 {
		return &InvalidDescriptorError{ID: d.ID, Problems: problems}
	}
	return nil
}

// Requires returns the required dependency specs in declaration order.
func (d *Descriptor) Requires() []DependencySpec {
	var out []DependencySpec
	for _, dep := range d.Dependencies {
		if dep.Required {
			out = append(out, dep)
		}
	}
	return out
}

// String returns "id@version".
func (d *Descriptor) String() string {
	return d.ID + "@" + d.Version.String()
}
