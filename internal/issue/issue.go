// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"

	"github.com/BomberFish/geode/pkg/cueutil"
	"github.com/BomberFish/geode/pkg/hook"
	"github.com/BomberFish/geode/pkg/loader"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/resolver"
)

type Id int

const (
	ModsDirNotFoundId Id = iota + 1
	ManifestNotFoundId
	ManifestInvalidId
	DuplicateModId
	DependencyCycleId
	InvalidEarlyLoadId
	MissingDependencyId
	VersionMismatchId
	UnresolvedDependencyId
	SetupFailedId
	TargetUnpatchableId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // project docs about this issue type
	hint     string      // one-line suggestion for ActionableError
	// match reports whether an error is an instance of this issue.
	match func(error) bool
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// Hint returns a one-line suggestion for fixing the issue.
func (i *Issue) Hint() string {
	return i.hint
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Markdown returns the message followed by a "See also" list of links.
func (i *Issue) Markdown() string {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- " + string(link) + "\n"
		}
	}
	return md
}

// Render renders the issue for the terminal. stylePath is a glamour style name
// ("dark", "light", "notty") or a path to a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

const docsBase = "https://github.com/BomberFish/geode/blob/main/docs/"

var (
	// ErrModsDirNotFound marks errors about a missing or unreadable mods directory.
	ErrModsDirNotFound = errors.New("mods directory not found")
	// ErrConfigLoadFailed marks errors from reading or validating the config file.
	ErrConfigLoadFailed = errors.New("config load failed")
)

var (
	render = glamour.Render

	modsDirNotFoundIssue = &Issue{
		id: ModsDirNotFoundId,
		mdMsg: `
# Mods directory not found!

Geode looks for mods in one directory. Each mod lives in its own subdirectory
with a manifest named ` + "`mod.cue`, `mod.json` or `mod.toml`" + `.

## Things you can try:
- Pass the directory explicitly:
~~~
$ geode resolve ./mods
~~~

- Or set it once in your config:
~~~cue
mods_dir: "/path/to/mods"
~~~`,
		docLinks: []HttpLink{docsBase + "configuration.md"},
		hint:     "Pass the mods directory as an argument or set mods_dir in the config",
		match:    func(err error) bool { return errors.Is(err, ErrModsDirNotFound) },
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# No mod manifest found!

The directory does not contain ` + "`mod.cue`, `mod.json` or `mod.toml`" + `.

## Things you can try:
- Check the file name; manifests are not found under any other name
- Make sure the manifest sits directly inside the mod's directory`,
		hint:  "Name the manifest mod.cue, mod.json or mod.toml",
		match: func(err error) bool { return errors.Is(err, modinfo.ErrManifestNotFound) },
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Invalid mod manifest!

The manifest did not pass validation.

## Common issues:
- ` + "`id`" + ` is missing or contains characters other than letters, digits, '.', '_' and '-'
- ` + "`version`" + ` is not of the form MAJOR.MINOR.PATCH
- A dependency version uses a range; only exact versions are supported
- Unknown field names (the schema is closed)
- The same dependency is listed twice

## Example manifest:
~~~json
{
  "id": "com.example.better-saves",
  "version": "1.2.0",
  "name": "Better Saves",
  "dependencies": [
    { "id": "com.example.api", "version": "2.0.0" }
  ]
}
~~~

## Things you can try:
- Validate one manifest at a time:
~~~
$ geode validate mods/better-saves/mod.json
~~~`,
		docLinks: []HttpLink{docsBase + "manifest.md"},
		hint:     "Run 'geode validate <manifest>' for the full list of problems",
		match: func(err error) bool {
			// Config files are validated with the same CUE helpers.
			if errors.Is(err, ErrConfigLoadFailed) {
				return false
			}
			return errors.Is(err, cueutil.ErrValidation) ||
				errors.Is(err, modinfo.ErrInvalidDescriptor) ||
				errors.Is(err, modinfo.ErrInvalidID)
		},
	}

	duplicateModIssue = &Issue{
		id: DuplicateModId,
		mdMsg: `
# Two mods share an id!

Mod ids are compared case-insensitively. When two manifests declare the same id,
neither of them loads.

## Things you can try:
- Remove the older copy of the mod from the mods directory
- If these really are different mods, give one of them a new id`,
		hint:  "Remove one of the mods that share the id",
		match: func(err error) bool { return errors.Is(err, resolver.ErrDuplicateID) },
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle!

The listed mods require each other in a loop, so none of them can load first.
Only the mods in the cycle (and the mods that require them) are affected.

## Things you can try:
- Make one of the dependencies in the loop optional:
~~~json
{ "id": "com.example.other", "version": "1.0.0", "required": false }
~~~

- Run ` + "`geode graph`" + ` to see the full dependency graph`,
		hint:  "Make one dependency in the cycle optional",
		match: func(err error) bool { return errors.Is(err, resolver.ErrCycle) },
	}

	invalidEarlyLoadIssue = &Issue{
		id: InvalidEarlyLoadId,
		mdMsg: `
# Early-load mod depends on a regular mod!

Mods with ` + "`\"early-load\": true`" + ` load before all other mods, so they can only
require other early-load mods.

## Things you can try:
- Mark the dependency as early-load too
- Or drop ` + "`early-load`" + ` from the dependent mod`,
		hint:  "Mark the dependency as early-load or drop early-load from the dependent",
		match: func(err error) bool { return errors.Is(err, resolver.ErrInvalidEarlyLoadOrdering) },
	}

	missingDependencyIssue = &Issue{
		id: MissingDependencyId,
		mdMsg: `
# Required dependency not installed!

A mod requires another mod that is not in the mods directory.

## Things you can try:
- Install the missing mod
- If the mod works without it, mark the dependency as optional`,
		hint:  "Install the missing mod or make the dependency optional",
		match: func(err error) bool { return errors.Is(err, resolver.ErrMissingDependency) },
	}

	versionMismatchIssue = &Issue{
		id: VersionMismatchId,
		mdMsg: `
# Dependency version mismatch!

A mod requires an exact version of another mod, and a different version is installed.

## Things you can try:
- Install the version the mod asks for
- Update the dependent mod to a release built against the installed version`,
		hint:  "Install the exact version the dependent asks for",
		match: func(err error) bool { return errors.Is(err, resolver.ErrVersionMismatch) },
	}

	unresolvedDependencyIssue = &Issue{
		id: UnresolvedDependencyId,
		mdMsg: `
# Dependency failed to resolve!

A required dependency is installed but could not be resolved itself, so the mods
that need it cannot load either. Fix the first problem in the chain; the rest follow.`,
		hint:  "Fix the first problem in the dependency chain",
		match: func(err error) bool { return errors.Is(err, resolver.ErrUnresolvedDependency) },
	}

	setupFailedIssue = &Issue{
		id: SetupFailedId,
		mdMsg: `
# Mod setup failed!

The mod's setup returned an error or panicked. Its hooks were removed again and
the mods that require it were not loaded.

## Things you can try:
- Report the problem to the mod's developer, including the error above
- Disable the mod until a fixed release is available:
~~~cue
disabled_mods: ["com.example.broken"]
~~~`,
		hint: "Add the mod to disabled_mods until it is fixed",
		match: func(err error) bool {
			return errors.Is(err, loader.ErrSetupFailed) || errors.Is(err, loader.ErrDependencyNotLoaded)
		},
	}

	targetUnpatchableIssue = &Issue{
		id: TargetUnpatchableId,
		mdMsg: `
# Function cannot be hooked!

A mod tried to hook a function that does not exist in this host, or the function
was modified by something other than Geode.

## Things you can try:
- Check that the mod supports this version of the host
- Remove other tools that patch the same function`,
		hint:  "Check that the mod supports this host version",
		match: func(err error) bool { return errors.Is(err, hook.ErrTargetUnpatchable) },
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the syntax of your config file
- Print the path of the config file in use:
~~~
$ geode config path
~~~

- Start over from the defaults:
~~~
$ geode config init --force
~~~`,
		docLinks: []HttpLink{docsBase + "configuration.md"},
		hint:     "Run 'geode config path' and check the file's syntax",
		match:    func(err error) bool { return errors.Is(err, ErrConfigLoadFailed) },
	}

	// catalog is ordered by id. ForError tries entries in this order, so the
	// direct problems come before the cascades that wrap them.
	catalog = []*Issue{
		modsDirNotFoundIssue,
		manifestNotFoundIssue,
		manifestInvalidIssue,
		duplicateModIssue,
		dependencyCycleIssue,
		invalidEarlyLoadIssue,
		missingDependencyIssue,
		versionMismatchIssue,
		unresolvedDependencyIssue,
		setupFailedIssue,
		targetUnpatchableIssue,
		configLoadFailedIssue,
	}

	issues = func() map[Id]*Issue {
		m := make(map[Id]*Issue, len(catalog))
		for _, i := range catalog {
			m[i.id] = i
		}
		return m
	}()
)

// Values returns every issue ordered by id.
func Values() []*Issue {
	return slices.Clone(catalog)
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForError returns the issue that explains err, or nil. A cascaded resolver
// error is explained by its root cause.
func ForError(err error) *Issue {
	if err == nil {
		return nil
	}
	if root := resolver.RootCause(err); root != err {
		if i := ForError(root); i != nil {
			return i
		}
	}
	idx := slices.IndexFunc(catalog, func(i *Issue) bool { return i.match(err) })
	if idx < 0 {
		return nil
	}
	return catalog[idx]
}
