// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates documents against an embedded CUE schema and decodes
// them into Go values.
//
// Both mod manifests and the loader configuration go through the same steps:
//
//  1. Compile the embedded schema and look up its root definition
//  2. Compile (or encode) the user document and unify it with that definition
//  3. Validate and decode to a Go struct
//
// CUE and JSON sources are compiled directly since JSON is valid CUE. Documents that
// were already decoded from another format (TOML) are encoded into CUE values with
// [DecodeValue] and then validated the same way.
//
//	//go:embed mod_schema.cue
//	var schema []byte
//
//	res, err := cueutil.ParseAndDecode[rawMod](schema, data, "#Mod",
//	    cueutil.WithFilename("mod.cue"))
package cueutil
