// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Result holds a decoded document together with the unified CUE value.
type Result[T any] struct {
	Value   *T
	Unified cue.Value
}

// ParseAndDecode compiles data (CUE or JSON), unifies it with the definition at
// schemaPath in schema, validates it and decodes it into T.
func ParseAndDecode[T any](schema, data []byte, schemaPath string, opts ...Option) (*Result[T], error) {
	o := applyOptions(opts)

	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	root, err := compileSchema(ctx, schema, schemaPath)
	if err != nil {
		return nil, err
	}

	user := ctx.CompileBytes(data, cue.Filename(o.filename))
	if user.Err() != nil {
		return nil, FormatError(user.Err(), o.filename)
	}

	return unifyAndDecode[T](root, user, o)
}

// DecodeValue validates an already decoded document (maps, slices and scalars, as
// produced by a TOML or YAML decoder) against the definition at schemaPath and
// decodes it into T.
func DecodeValue[T any](schema []byte, doc any, schemaPath string, opts ...Option) (*Result[T], error) {
	o := applyOptions(opts)

	ctx := cuecontext.New()
	root, err := compileSchema(ctx, schema, schemaPath)
	if err != nil {
		return nil, err
	}

	user := ctx.Encode(doc)
	if user.Err() != nil {
		return nil, FormatError(user.Err(), o.filename)
	}

	return unifyAndDecode[T](root, user, o)
}

func compileSchema(ctx *cue.Context, schema []byte, schemaPath string) (cue.Value, error) {
	compiled := ctx.CompileBytes(schema)
	if compiled.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: failed to compile schema: %w", compiled.Err())
	}
	root := compiled.LookupPath(cue.ParsePath(schemaPath))
	if root.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: schema definition %s not found: %w", schemaPath, root.Err())
	}
	return root, nil
}

func unifyAndDecode[T any](root, user cue.Value, o options) (*Result[T], error) {
	unified := root.Unify(user)

	validateOpts := []cue.Option{cue.Concrete(o.concrete)}
	if err := unified.Validate(validateOpts...); err != nil {
		return nil, FormatError(err, o.filename)
	}

	var out T
	if err := unified.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}

	return &Result[T]{Value: &out, Unified: unified}, nil
}
