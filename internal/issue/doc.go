// SPDX-License-Identifier: MPL-2.0

// Package issue turns loader errors into user-facing guidance.
//
// The catalog maps resolver, hook and lifecycle errors to Markdown explanations
// rendered with glamour; ActionableError carries the operation, the resource and
// suggestions for the CLI's error output.
package issue
