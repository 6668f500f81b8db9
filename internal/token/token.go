// Package token generates random strings from a configurable alphabet.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// DefaultAlphabet is used when Options.Alphabet is empty.
const DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	minLength = 2
	maxLength = 100
)

// Class is a category of characters that can be excluded from an alphabet.
type Class string

const (
	// Upper is the ASCII upper case letters.
	Upper Class = "upper"
	// Lower is the ASCII lower case letters.
	Lower Class = "lower"
	// Number is the ASCII digits.
	Number Class = "number"
	// Other is every symbol that is neither a letter nor a digit. It can only
	// be excluded from a custom alphabet.
	Other Class = "other"
)

// ParseClass converts a class name.
func ParseClass(s string) (Class, error) {
	switch c := Class(strings.ToLower(s)); c {
	case Upper, Lower, Number, Other:
		return c, nil
	}
	return "", fmt.Errorf("unknown character class %q, expected one of upper, lower, number, other", s)
}

// Options customizes Generate.
type Options struct {
	// Alphabet lists the allowed symbols. Defaults to DefaultAlphabet.
	Alphabet string
	// Exclude removes whole classes of symbols from the alphabet.
	Exclude []Class
}

// Generate returns a random string of length symbols.
//
// Symbols are picked uniformly from the alphabet using crypto/rand.
func Generate(length int, opts *Options) (string, error) {
	if length < minLength || length > maxLength {
		return "", fmt.Errorf("length must be between %d and %d, got %d", minLength, maxLength, length)
	}
	symbols, err := alphabet(opts)
	if err != nil {
		return "", err
	}
	n := big.NewInt(int64(len(symbols)))
	var b strings.Builder
	b.Grow(length)
	for range length {
		i, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("failed to read random data: %w", err)
		}
		b.WriteRune(symbols[i.Int64()])
	}
	return b.String(), nil
}

// alphabet returns the symbols left once the excluded classes are removed.
func alphabet(opts *Options) ([]rune, error) {
	src := DefaultAlphabet
	custom := false
	var exclude []Class
	if opts != nil {
		if opts.Alphabet != "" {
			src = opts.Alphabet
			custom = true
		}
		exclude = opts.Exclude
	}
	symbols := []rune(src)
	if len(symbols) < minLength {
		return nil, errors.New("alphabet must contain at least 2 symbols")
	}
	for _, c := range exclude {
		switch c {
		case Upper, Lower, Number:
		case Other:
			if !custom {
				return nil, errors.New(`class "other" can only be excluded from a custom alphabet`)
			}
		default:
			return nil, fmt.Errorf("unknown character class %q", c)
		}
	}
	if len(exclude) != 0 {
		symbols = slices.DeleteFunc(symbols, func(r rune) bool {
			return slices.Contains(exclude, classOf(r))
		})
	}
	if len(symbols) < minLength {
		return nil, fmt.Errorf("alphabet has %d symbols left after exclusions, at least 2 are required", len(symbols))
	}
	return symbols, nil
}

func classOf(r rune) Class {
	switch {
	case r >= 'A' && r <= 'Z':
		return Upper
	case r >= 'a' && r <= 'z':
		return Lower
	case r >= '0' && r <= '9':
		return Number
	}
	return Other
}
