// SPDX-License-Identifier: MPL-2.0

package modinfo

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/BomberFish/geode/pkg/cueutil"
	"github.com/BomberFish/geode/pkg/version"
)

const (
	// FormatCUE is a mod.cue manifest.
	FormatCUE Format = "cue"
	// FormatJSON is a mod.json manifest.
	FormatJSON Format = "json"
	// FormatTOML is a mod.toml manifest.
	FormatTOML Format = "toml"

	schemaPath = "#Mod"
)

var (
	//go:embed mod_schema.cue
	modSchema []byte

	// ErrInvalidFormat is returned for an unknown manifest format.
	ErrInvalidFormat = errors.New("invalid manifest format")
	// ErrManifestNotFound is returned when a directory holds no manifest.
	ErrManifestNotFound = errors.New("mod manifest not found")

	// ManifestNames lists the recognized manifest file names in lookup order.
	ManifestNames = []string{"mod.cue", "mod.json", "mod.toml"}

	// markdownFiles maps Markdown files next to a manifest to the descriptor
	// field they fill when the manifest leaves it empty.
	markdownFiles = []struct {
		name  string
		field func(*Descriptor) *string
	}{
		{"about.md", func(d *Descriptor) *string { return &d.Details }},
		{"changelog.md", func(d *Descriptor) *string { return &d.Changelog }},
		{"support.md", func(d *Descriptor) *string { return &d.SupportInfo }},
	}
)

type (
	// Format is a manifest encoding.
	Format string

	rawMod struct {
		ID                string          `json:"id"`
		Version           string          `json:"version"`
		Name              string          `json:"name,omitempty"`
		Developer         string          `json:"developer,omitempty"`
		Description       string          `json:"description,omitempty"`
		Details           string          `json:"details,omitempty"`
		Changelog         string          `json:"changelog,omitempty"`
		SupportInfo       string          `json:"support-info,omitempty"`
		Repository        string          `json:"repository,omitempty"`
		Binary            string          `json:"binary,omitempty"`
		Issues            *rawIssues      `json:"issues,omitempty"`
		Spritesheets      []string        `json:"spritesheets,omitempty"`
		Settings          map[string]any  `json:"settings,omitempty"`
		Dependencies      []rawDependency `json:"dependencies"`
		SupportsDisabling bool            `json:"supports-disabling"`
		SupportsUnloading bool            `json:"supports-unloading"`
		EarlyLoad         bool            `json:"early-load"`
	}

	rawDependency struct {
		ID       string `json:"id"`
		Version  string `json:"version"`
		Required bool   `json:"required"`
	}

	rawIssues struct {
		Info string `json:"info"`
		URL  string `json:"url,omitempty"`
	}
)

// String returns the format name.
func (f Format) String() string { return string(f) }

// IsValid returns whether f is a known manifest format.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatCUE, FormatJSON, FormatTOML:
		return true, nil
	default:
		return false, []error{fmt.Errorf("%w: %q", ErrInvalidFormat, string(f))}
	}
}

// FormatFromPath infers the manifest format from a file extension.
func FormatFromPath(path string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if ok, errs := f.IsValid(); !ok {
		return "", errs[0]
	}
	return f, nil
}

// ParseFile reads and parses the manifest at path.
func ParseFile(path string) (*Descriptor, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mod manifest at %s: %w", path, err)
	}

	d, err := Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	if err := loadMarkdown(d, filepath.Dir(path)); err != nil {
		return nil, err
	}
	return d, nil
}

// loadMarkdown fills Details, Changelog and SupportInfo from about.md,
// changelog.md and support.md in dir. Fields set in the manifest win.
func loadMarkdown(d *Descriptor, dir string) error {
	for _, mf := range markdownFiles {
		field := mf.field(d)
		if *field != "" {
			continue
		}
		p := filepath.Join(dir, mf.name)
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, p); err != nil {
			return err
		}
		*field = string(data)
	}
	return nil
}

// Parse parses manifest bytes in the given format. source names the manifest in
// errors and is stored on the descriptor.
func Parse(data []byte, format Format, source string) (*Descriptor, error) {
	if ok, errs := format.IsValid(); !ok {
		return nil, errs[0]
	}
	if source == "" {
		source = "mod." + format.String()
	}

	var (
		res *cueutil.Result[rawMod]
		err error
	)
	switch format {
	case FormatCUE, FormatJSON:
		res, err = cueutil.ParseAndDecode[rawMod](modSchema, data, schemaPath, cueutil.WithFilename(source))
	case FormatTOML:
		if err = cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, source); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err = toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		res, err = cueutil.DecodeValue[rawMod](modSchema, doc, schemaPath, cueutil.WithFilename(source))
	}
	if err != nil {
		return nil, err
	}

	d, err := res.Value.toDescriptor(source)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return d, nil
}

func (r *rawMod) toDescriptor(source string) (*Descriptor, error) {
	v, err := version.Parse(r.Version)
	if err != nil {
		return nil, fmt.Errorf("%s: version: %w", source, err)
	}

	d := &Descriptor{
		ID:                r.ID,
		Version:           v,
		Name:              r.Name,
		Developer:         r.Developer,
		Description:       r.Description,
		Details:           r.Details,
		Changelog:         r.Changelog,
		SupportInfo:       r.SupportInfo,
		Repository:        r.Repository,
		Binary:            r.Binary,
		Spritesheets:      r.Spritesheets,
		Settings:          r.Settings,
		SupportsDisabling: r.SupportsDisabling,
		SupportsUnloading: r.SupportsUnloading,
		NeedsEarlyLoad:    r.EarlyLoad,
		Source:            source,
	}
	if r.Issues != nil {
		d.Issues = &IssuesInfo{Info: r.Issues.Info, URL: r.Issues.URL}
	}

	for i, dep := range r.Dependencies {
		c, err := version.ParseConstraint(dep.Version)
		if err != nil {
			return nil, fmt.Errorf("%s: dependencies[%d].version: %w", source, i, err)
		}
		d.Dependencies = append(d.Dependencies, DependencySpec{
			ID:       dep.ID,
			Version:  c,
			Required: dep.Required,
		})
	}

	return d, nil
}

// FindManifest returns the manifest path inside dir, following ManifestNames order.
func FindManifest(dir string) (string, error) {
	for _, name := range ManifestNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrManifestNotFound, dir)
}

// Discover parses the manifest of every immediate subdirectory of dir, in directory
// name order. Subdirectories without a manifest are skipped. Parse failures are
// joined into the returned error; the descriptors that did parse are still returned.
func Discover(dir string) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mods directory %s: %w", dir, err)
	}

	var (
		descs []*Descriptor
		errs  []error
	)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path, err := FindManifest(filepath.Join(dir, entry.Name()))
		if errors.Is(err, ErrManifestNotFound) {
			continue
		}
		d, err := ParseFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descs = append(descs, d)
	}

	return descs, errors.Join(errs...)
}
