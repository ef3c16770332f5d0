// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package normalize produces canonical comparison keys for channel labels,
// program titles and search terms.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	unorm "golang.org/x/text/unicode/norm"
)

// Label returns the case-insensitive comparison key for s:
// - trims Unicode whitespace + invisible edge characters
// - collapses inner whitespace runs to a single space
// - folds case (full Unicode folding, not just ASCII)
//
// The result is stable under repeated application.
func Label(s string) string {
	s = strings.TrimFunc(s, isEdge)
	if s == "" {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")

	// Fold on composed input and re-compose afterwards; folding may emit
	// combining sequences. Casers are stateful and must not be shared.
	s = unorm.NFC.String(s)
	s = cases.Fold().String(s)
	return unorm.NFC.String(s)
}

// Equal reports whether a and b are the same label ignoring case and spacing.
func Equal(a, b string) bool {
	return Label(a) == Label(b)
}

// Contains reports whether the normalized form of s contains the normalized term.
// An empty term matches everything.
func Contains(s, term string) bool {
	term = Label(term)
	if term == "" {
		return true
	}
	return strings.Contains(Label(s), term)
}

func isEdge(r rune) bool {
	return unicode.IsSpace(r) ||
		r == '\u200B' || // Zero Width Space
		r == '\u200C' || // Zero Width Non-Joiner
		r == '\u200D' || // Zero Width Joiner
		r == '\uFEFF' // Zero Width Non-Breaking Space (BOM)
}
