package phonetic

import "strings"

// soundexCode maps a lowercase ASCII letter to its Soundex digit, or 0 for
// letters that are dropped (vowels, h, w, y).
var soundexCode = [26]byte{
	'b' - 'a': '1', 'f' - 'a': '1', 'p' - 'a': '1', 'v' - 'a': '1',
	'c' - 'a': '2', 'g' - 'a': '2', 'j' - 'a': '2', 'k' - 'a': '2',
	'q' - 'a': '2', 's' - 'a': '2', 'x' - 'a': '2', 'z' - 'a': '2',
	'd' - 'a': '3', 't' - 'a': '3',
	'l' - 'a': '4',
	'm' - 'a': '5', 'n' - 'a': '5',
	'r' - 'a': '6',
}

// soundex computes the classic American Soundex code: one letter followed
// by three digits, padded with zeros when the name runs short.
func soundex(letters string) string {
	if letters == "" {
		return ""
	}
	var b strings.Builder
	first := letters[0]
	b.WriteByte(upper(first))

	lastCode := soundexCode[first-'a']
	for i := 1; i < len(letters) && b.Len() < 4; i++ {
		c := letters[i]
		code := soundexCode[c-'a']
		if code != 0 && code != lastCode {
			b.WriteByte(code)
		}
		// h and w don't break a run of identical codes; every other
		// letter (vowels included) resets it.
		if c != 'h' && c != 'w' {
			lastCode = code
		}
	}
	out := b.String()
	for len(out) < 4 {
		out += "0"
	}
	return out
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
