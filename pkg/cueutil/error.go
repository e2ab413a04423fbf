// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	// ErrValidation is the sentinel wrapped by ValidationError.
	ErrValidation = errors.New("schema validation failed")
	// ErrFileTooLarge is returned when a document exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
)

type (
	// Violation is one schema violation, located by a JSON-style path.
	Violation struct {
		Path    string
		Message string
	}

	// ValidationError lists every violation found in one document.
	ValidationError struct {
		FilePath   string
		Violations []Violation
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Path != "" {
			lines = append(lines, v.Path+": "+v.Message)
		} else {
			lines = append(lines, v.Message)
		}
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.FilePath, lines[0])
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.FilePath, strings.Join(lines, "\n  "))
}

// Unwrap returns ErrValidation for errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// FormatError converts a CUE error into a *ValidationError with one violation per
// underlying CUE error. Non-CUE errors are wrapped with the file path.
//
//	mod.cue: dependencies[0].version: conflicting values "1.x" and =~"^v?[0-9]+..."
func FormatError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	// cueerrors.Errors promotes plain errors, so check for a CUE error first.
	var cueErr cueerrors.Error
	if !errors.As(err, &cueErr) {
		return fmt.Errorf("%s: %w", filePath, err)
	}
	list := cueerrors.Errors(err)

	verr := &ValidationError{FilePath: filePath}
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		// CUE sometimes repeats the path as a message prefix.
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		verr.Violations = append(verr.Violations, Violation{Path: path, Message: msg})
	}
	return verr
}

// formatPath turns ["dependencies", "0", "id"] into "dependencies[0].id".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize returns an error wrapping ErrFileTooLarge when data exceeds maxSize.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: %w: %d bytes exceeds maximum %d bytes",
			filename, ErrFileTooLarge, len(data), maxSize)
	}
	return nil
}
