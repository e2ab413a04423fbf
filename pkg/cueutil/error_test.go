// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns nil", func(t *testing.T) {
		t.Parallel()

		if err := FormatError(nil, "mod.cue"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("non-CUE error is wrapped with filepath", func(t *testing.T) {
		t.Parallel()

		original := errors.New("some error")
		err := FormatError(original, "mod.cue")
		if !errors.Is(err, original) {
			t.Fatalf("expected wrapped original error, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "mod.cue: ") {
			t.Errorf("error should start with filepath, got: %v", err)
		}
	})
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     []string
		expected string
	}{
		{"empty path", nil, ""},
		{"single element", []string{"id"}, "id"},
		{"nested path", []string{"issues", "url"}, "issues.url"},
		{"array index", []string{"dependencies", "0", "id"}, "dependencies[0].id"},
		{"nested arrays", []string{"a", "0", "b", "1"}, "a[0].b[1]"},
		{"leading number is a field", []string{"0", "x"}, "0.x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatPath(tt.path); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	if err := CheckFileSize(make([]byte, 10), 10, "f"); err != nil {
		t.Errorf("expected no error at the limit, got %v", err)
	}
	err := CheckFileSize(make([]byte, 11), 10, "f")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	single := &ValidationError{FilePath: "mod.json", Violations: []Violation{{Path: "id", Message: "bad"}}}
	if got := single.Error(); got != "mod.json: id: bad" {
		t.Errorf("unexpected message %q", got)
	}

	multi := &ValidationError{FilePath: "mod.json", Violations: []Violation{
		{Path: "id", Message: "bad"},
		{Message: "worse"},
	}}
	if got := multi.Error(); !strings.Contains(got, "validation failed:\n  id: bad\n  worse") {
		t.Errorf("unexpected message %q", got)
	}
	if !errors.Is(multi, ErrValidation) {
		t.Error("ValidationError should match ErrValidation")
	}
}
