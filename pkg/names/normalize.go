// Package names implements the normalization rules shared by every layer
// of the classifier cascade: trimming, whitespace collapse, case folding,
// and diacritic stripping, so that "Van der Merwe", "van  der merwe", and
// "VAN DER MERWE" all key to the same tokens.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticStripper transforms NFD-decomposed text by dropping combining
// marks, turning e.g. "é" into "e" after a prior norm.NFD pass.
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalized holds both the original and normalized form of a name, per the
// data model invariant that original text is preserved for storage while
// matching happens on the folded form.
type Normalized struct {
	Original   string
	Normalized string
}

// ErrEmpty is returned when a name is empty or whitespace-only.
var ErrEmpty = emptyNameError{}

type emptyNameError struct{}

func (emptyNameError) Error() string { return "name: empty or whitespace-only after normalization" }

// Normalize trims, collapses internal whitespace, strips diacritics and
// folds case, returning both the original (trimmed) and normalized forms.
// Empty or whitespace-only input is rejected with ErrEmpty.
func Normalize(raw string) (Normalized, error) {
	trimmed := strings.TrimSpace(collapseWhitespace(raw))
	if trimmed == "" {
		return Normalized{}, ErrEmpty
	}

	folded, _, err := transform.String(diacriticStripper, trimmed)
	if err != nil {
		folded = trimmed
	}
	folded = strings.ToLower(folded)
	folded = collapseWhitespace(folded)

	return Normalized{Original: trimmed, Normalized: folded}, nil
}

// collapseWhitespace replaces runs of whitespace with a single space.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Tokens splits a normalized name into whitespace-delimited tokens,
// dropping any empty tokens produced by stray punctuation.
func Tokens(normalized string) []string {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// IsInitial reports whether a token is a one- or two-letter initial
// (optionally followed by a trailing period), per the Dictionary Store's
// rule to ignore initials during significant-token classification.
func IsInitial(token string) bool {
	t := strings.TrimSuffix(token, ".")
	if len(t) == 0 || len(t) > 2 {
		return false
	}
	for _, r := range t {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
