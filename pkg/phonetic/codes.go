// Package phonetic computes multi-algorithm phonetic codes for names.
// Every function here is pure: no I/O, no shared mutable state, safe to
// call concurrently from any number of goroutines — the Phonetic Coder in
// the classifier cascade must stay that way per the core design notes.
package phonetic

import (
	"sort"
	"strings"
	"unicode"
)

// NumAlgorithms is the number of independent phonetic algorithms a Code
// carries. Family membership requires agreement on at least two of them.
const NumAlgorithms = 4

// Code holds the result of every supported phonetic algorithm for a single
// normalized name, plus a stable key for grouping names into families.
type Code struct {
	Soundex     string
	Metaphone   string
	NYSIIS      string
	MatchRating string
}

// Codes computes all supported phonetic codes for a normalized, non-empty
// name. It never fails: for degenerate input (no alphabetic characters) it
// returns a Code with every field empty.
func Codes(normalized string) Code {
	letters := onlyLetters(normalized)
	if letters == "" {
		return Code{}
	}
	return Code{
		Soundex:     soundex(letters),
		Metaphone:   metaphone(letters),
		NYSIIS:      nysiis(letters),
		MatchRating: matchRatingCodex(letters),
	}
}

// fields returns the four codes in a fixed order, used by Agreement and
// FamilyKey so both operate over the same canonical ordering.
func (c Code) fields() [NumAlgorithms]string {
	return [NumAlgorithms]string{c.Soundex, c.Metaphone, c.NYSIIS, c.MatchRating}
}

// Empty reports whether every algorithm produced an empty code, i.e. the
// input had no usable alphabetic content.
func (c Code) Empty() bool {
	for _, f := range c.fields() {
		if f != "" {
			return false
		}
	}
	return true
}

// Agreement counts how many of the four algorithms produced identical,
// non-empty codes between a and b.
func Agreement(a, b Code) int {
	af, bf := a.fields(), b.fields()
	n := 0
	for i := range af {
		if af[i] != "" && af[i] == bf[i] {
			n++
		}
	}
	return n
}

// FamilyKey returns a stable, opaque grouping key for a Code. Families are
// keyed on the Soundex/NYSIIS pair (the two most name-discriminating
// algorithms here); when two algorithms would tie on different
// canonicalizations, ties break to the lexicographically smaller string so
// the same family always keys the same way regardless of insertion order.
func FamilyKey(c Code) string {
	parts := []string{c.Soundex, c.NYSIIS}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// onlyLetters lowercases and strips everything but ASCII letters, which is
// what every one of the classic phonetic algorithms below expects.
func onlyLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
