package phonetic

import "strings"

// matchRatingCodex computes a Match Rating Approach (MRA) codex: drop
// repeated adjacent letters, remove all vowels but the first letter, then
// keep the first three and last three consonants (codexes shorter than six
// characters keep everything they have). MRA is deliberately not the same
// family of algorithm as Soundex/Metaphone/NYSIIS, so it catches cases
// where the others agree on a false positive.
func matchRatingCodex(letters string) string {
	if letters == "" {
		return ""
	}
	s := strings.ToUpper(letters)

	deduped := make([]byte, 0, len(s))
	var last byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == last {
			continue
		}
		deduped = append(deduped, c)
		last = c
	}

	if len(deduped) == 0 {
		return ""
	}
	kept := []byte{deduped[0]}
	for i := 1; i < len(deduped); i++ {
		if !isVowelUpper(deduped[i]) {
			kept = append(kept, deduped[i])
		}
	}

	if len(kept) <= 6 {
		return string(kept)
	}
	first3 := kept[:3]
	last3 := kept[len(kept)-3:]
	return string(first3) + string(last3)
}
