// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is a failure the CLI can print with advice attached: the
	// step that failed (Operation), the mod, manifest or directory it concerned
	// (Resource), and what the user can try next (Suggestions).
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load manifest").
	//		WithResource("mods/core/mod.cue").
	//		WithSuggestion("Run 'geode validate mods/core/mod.cue'").
	//		Wrap(err).
	//		BuildError()
	ActionableError struct {
		Operation   string
		Resource    string
		Suggestions []string
		Cause       error
	}

	// ErrorContext accumulates the fields of an ActionableError. The zero
	// operation is invalid, so Build returns nil until WithOperation is called.
	ErrorContext struct {
		ae ActionableError
	}
)

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Explain attaches operation and resource to err, plus the catalog hint for the
// failure when ForError recognizes it. A nil err stays nil.
func Explain(err error, operation, resource string) *ActionableError {
	if err == nil {
		return nil
	}
	ae := &ActionableError{Operation: operation, Resource: resource, Cause: err}
	if i := ForError(err); i != nil && i.Hint() != "" {
		ae.Suggestions = append(ae.Suggestions, i.Hint())
	}
	return ae
}

// Error renders "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *ActionableError) Unwrap() error { return e.Cause }

// HasSuggestions reports whether there is any advice to print.
func (e *ActionableError) HasSuggestions() bool { return len(e.Suggestions) > 0 }

// Format renders the message followed by one "try:" line per suggestion. With
// verbose set it also lists every error in the cause chain, outermost first.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())

	for _, s := range e.Suggestions {
		b.WriteString("\n  try: ")
		b.WriteString(s)
	}

	if !verbose || e.Cause == nil {
		return b.String()
	}
	b.WriteString("\n\ncaused by:")
	for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
		fmt.Fprintf(&b, "\n  %d. %s", depth, err)
	}
	return b.String()
}

// WithOperation names the failed step as a verb phrase, e.g. "resolve mods".
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.ae.Operation = op
	return c
}

// WithResource names the path or mod id involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.ae.Resource = res
	return c
}

// WithSuggestion appends one piece of advice.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.ae.Suggestions = append(c.ae.Suggestions, sug)
	return c
}

// Wrap sets the underlying error.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.ae.Cause = err
	return c
}

// Build returns a copy of the accumulated error, or nil without an operation.
func (c *ErrorContext) Build() *ActionableError {
	if c.ae.Operation == "" {
		return nil
	}
	ae := c.ae
	ae.Suggestions = append([]string(nil), c.ae.Suggestions...)
	return &ae
}

// BuildError is Build for return statements, avoiding a typed-nil error.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
