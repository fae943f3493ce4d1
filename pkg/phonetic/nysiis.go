package phonetic

import "strings"

// nysiis computes a New York State Identification and Intelligence System
// code: a translation-heavy algorithm tuned for surnames, used here as a
// second, differently-biased opinion alongside Soundex.
func nysiis(letters string) string {
	if letters == "" {
		return ""
	}
	s := strings.ToUpper(letters)
	s = translatePrefix(s)
	s = strings.TrimSuffix(s, "S")
	s = translateSuffix(s)
	if s == "" {
		return ""
	}

	key := []byte{s[0]}
	last := key[0]

	for i := 1; i < len(s); i++ {
		c := s[i]
		var next byte
		if i+1 < len(s) {
			next = s[i+1]
		}

		switch c {
		case 'A', 'E', 'I', 'O', 'U':
			c = 'A'
		case 'Q':
			c = 'G'
		case 'Z':
			c = 'S'
		case 'M':
			c = 'N'
		case 'K':
			if next == 'N' {
				c = 'N'
			} else {
				c = 'C'
			}
		case 'P':
			if next == 'H' {
				c = 'F'
			}
		case 'H':
			if !isVowelUpper(last) && !isVowelUpper(next) {
				c = last
			}
		case 'W':
			if isVowelUpper(last) {
				c = last
			}
		}

		if c != last {
			key = append(key, c)
		}
		last = c
	}

	out := string(key)
	out = strings.TrimSuffix(out, "A")
	if out == "" {
		out = string(key[0])
	}
	if len(out) > 6 {
		out = out[:6]
	}
	return out
}

func isVowelUpper(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func translatePrefix(s string) string {
	switch {
	case strings.HasPrefix(s, "MAC"):
		return "MCC" + s[3:]
	case strings.HasPrefix(s, "KN"):
		return "NN" + s[2:]
	case strings.HasPrefix(s, "K"):
		return "C" + s[1:]
	case strings.HasPrefix(s, "PH"), strings.HasPrefix(s, "PF"):
		return "FF" + s[2:]
	case strings.HasPrefix(s, "SCH"):
		return "SSS" + s[3:]
	}
	return s
}

func translateSuffix(s string) string {
	switch {
	case strings.HasSuffix(s, "EE"), strings.HasSuffix(s, "IE"):
		return s[:len(s)-2] + "Y"
	case strings.HasSuffix(s, "DT"), strings.HasSuffix(s, "RT"), strings.HasSuffix(s, "RD"),
		strings.HasSuffix(s, "NT"), strings.HasSuffix(s, "ND"):
		return s[:len(s)-2] + "D"
	}
	return s
}
