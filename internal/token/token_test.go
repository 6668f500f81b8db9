package token

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		for _, length := range []int{2, 16, 100} {
			got, err := Generate(length, nil)
			if err != nil {
				t.Fatalf("Generate(%d) failed: %v", length, err)
			}
			if len(got) != length {
				t.Errorf("Generate(%d) returned %d symbols", length, len(got))
			}
			if strings.Trim(got, DefaultAlphabet) != "" {
				t.Errorf("Generate(%d) = %q contains symbols outside the alphabet", length, got)
			}
		}
	})

	t.Run("Length", func(t *testing.T) {
		for _, length := range []int{-1, 0, 1, 101} {
			if _, err := Generate(length, nil); err == nil {
				t.Errorf("Generate(%d) expected an error", length)
			}
		}
	})

	t.Run("Exclude", func(t *testing.T) {
		tests := []struct {
			name    string
			opts    Options
			allowed string
		}{
			{"no upper", Options{Exclude: []Class{Upper}}, "abcdefghijklmnopqrstuvwxyz0123456789"},
			{"digits only", Options{Exclude: []Class{Upper, Lower}}, "0123456789"},
			{"custom", Options{Alphabet: "ab12-_", Exclude: []Class{Number}}, "ab-_"},
			{"custom no other", Options{Alphabet: "ab12-_", Exclude: []Class{Other}}, "ab12"},
			// Symbols of a class do not need to be contiguous.
			{"interleaved", Options{Alphabet: "a1b2c3", Exclude: []Class{Number}}, "abc"},
			{"unicode", Options{Alphabet: "éàxy", Exclude: []Class{Lower}}, "éà"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := Generate(50, &tt.opts)
				if err != nil {
					t.Fatalf("Generate() failed: %v", err)
				}
				if strings.Trim(got, tt.allowed) != "" {
					t.Errorf("Generate() = %q, only %q allowed", got, tt.allowed)
				}
			})
		}
	})

	t.Run("Errors", func(t *testing.T) {
		tests := []struct {
			name string
			opts Options
		}{
			{"short alphabet", Options{Alphabet: "a"}},
			{"other on default", Options{Exclude: []Class{Other}}},
			{"unknown class", Options{Exclude: []Class{"symbols"}}},
			{"everything removed", Options{Exclude: []Class{Upper, Lower, Number}}},
			{"one left", Options{Alphabet: "ab1", Exclude: []Class{Lower}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got, err := Generate(10, &tt.opts); err == nil {
					t.Errorf("Generate() = %q, expected an error", got)
				}
			})
		}
	})

	t.Run("Distribution", func(t *testing.T) {
		got, err := Generate(100, &Options{Alphabet: "ab"})
		if err != nil {
			t.Fatal(err)
		}
		// The odds of missing a symbol are 2^-99.
		if !strings.Contains(got, "a") || !strings.Contains(got, "b") {
			t.Errorf("Generate() = %q uses a single symbol", got)
		}
	})
}

func TestParseClass(t *testing.T) {
	for _, s := range []string{"upper", "LOWER", "number", "other"} {
		if _, err := ParseClass(s); err != nil {
			t.Errorf("ParseClass(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseClass("digits"); err == nil {
		t.Error("ParseClass(digits) expected an error")
	}
}
