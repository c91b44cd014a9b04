// Package textnorm holds the text cleanup shared by model training and scoring.
package textnorm

import "strings"

// Version identifies the normalization contract. Model artifacts record it so a
// model trained under one contract is never scored under another.
const Version = "lower-latin-v1"

// Normalize lowercases raw and drops every rune that is not an ASCII letter or
// ASCII whitespace. Whitespace is kept as-is; runs are not collapsed.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case isSpace(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
