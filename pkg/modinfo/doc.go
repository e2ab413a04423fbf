// SPDX-License-Identifier: MPL-2.0

// Package modinfo defines mod descriptors and reads them from manifest files.
//
// A manifest is a mod.cue, mod.json or mod.toml file. Every format is validated
// against the same embedded CUE schema (#Mod) before it becomes a [Descriptor].
// Descriptors are immutable after parsing; the resolver assumes they are valid.
package modinfo
