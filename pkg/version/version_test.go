// SPDX-License-Identifier: MPL-2.0

package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"full", "1.2.3", New(1, 2, 3), false},
		{"with_v_prefix", "v2.3.4", New(2, 3, 4), false},
		{"major_only", "1", New(1, 0, 0), false},
		{"major_minor", "1.2", New(1, 2, 0), false},
		{"surrounding_space", " 0.9.1 ", New(0, 9, 1), false},
		{"zero", "0.0.0", Version{}, false},
		{"empty", "", Version{}, true},
		{"letters", "abc", Version{}, true},
		{"too_many", "1.2.3.4", Version{}, true},
		{"empty_component", "1..2", Version{}, true},
		{"leading_zero", "01.2.3", Version{}, true},
		{"negative", "-1.0.0", Version{}, true},
		{"prerelease", "1.0.0-beta", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) returned no error, want error", tt.input)
				}
				if !errors.Is(err, ErrInvalidVersion) {
					t.Errorf("error should wrap ErrInvalidVersion, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestVersion_Compare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2.0", "1.10.0", -1},
		{"1.2.4", "1.2.3", 1},
	}

	for _, tt := range tests {
		got := MustParse(tt.a).Compare(MustParse(tt.b))
		if got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersion_String(t *testing.T) {
	t.Parallel()

	if got := MustParse("v1.2").String(); got != "1.2.0" {
		t.Errorf("String() = %q, want %q", got, "1.2.0")
	}
}

func TestVersion_UnmarshalText(t *testing.T) {
	t.Parallel()

	var v Version
	if err := v.UnmarshalText([]byte("3.1.4")); err != nil {
		t.Fatalf("UnmarshalText() error: %v", err)
	}
	if v != New(3, 1, 4) {
		t.Errorf("expected 3.1.4, got %v", v)
	}

	if err := v.UnmarshalText([]byte("nope")); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestConstraint_ExactOnly(t *testing.T) {
	t.Parallel()

	c, err := ParseConstraint("1.0.0")
	if err != nil {
		t.Fatalf("ParseConstraint() error: %v", err)
	}

	if !c.Satisfies(New(1, 0, 0)) {
		t.Error("1.0.0 should satisfy exact constraint 1.0.0")
	}
	if c.Satisfies(New(1, 1, 0)) {
		t.Error("1.1.0 must not satisfy exact constraint 1.0.0")
	}
	if c.Satisfies(New(0, 9, 9)) {
		t.Error("0.9.9 must not satisfy exact constraint 1.0.0")
	}
}

func TestParseConstraint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"plain", "1.2.3", New(1, 2, 3), false},
		{"equals_prefix", "=1.2.3", New(1, 2, 3), false},
		{"caret_rejected", "^1.2.0", Version{}, true},
		{"range_rejected", ">=1.0.0", Version{}, true},
		{"empty", "", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseConstraint(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConstraint) {
					t.Fatalf("expected ErrInvalidConstraint, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConstraint(%q) unexpected error: %v", tt.input, err)
			}
			if got.Version() != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got.Version())
			}
		})
	}
}
