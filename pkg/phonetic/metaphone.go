package phonetic

import "strings"

// metaphone computes a simplified primary Metaphone code. It follows
// Lawrence Philips' original rules closely enough to cluster same-sounding
// surnames, without chasing every exception the full algorithm handles.
func metaphone(letters string) string {
	if letters == "" {
		return ""
	}
	s := []byte(letters)
	n := len(s)
	var b strings.Builder

	isVowel := func(c byte) bool {
		switch c {
		case 'a', 'e', 'i', 'o', 'u':
			return true
		}
		return false
	}

	i := 0
	switch {
	case n >= 2 && (s[0] == 'k' || s[0] == 'g' || s[0] == 'p') && s[1] == 'n':
		i = 1
	case n >= 2 && s[0] == 'w' && s[1] == 'r':
		i = 1
	case n >= 1 && s[0] == 'x':
		b.WriteByte('s')
		i = 1
	case n >= 2 && s[0] == 'w' && s[1] == 'h':
		b.WriteByte('w')
		i = 2
	}
	if i == 0 && n > 0 && isVowel(s[0]) {
		b.WriteByte(s[0])
		i = 1
	}

	var prev byte
	for ; i < n && b.Len() < 6; i++ {
		c := s[i]
		if c == prev && c != 'c' {
			continue
		}
		next := byte(0)
		if i+1 < n {
			next = s[i+1]
		}

		switch c {
		case 'a', 'e', 'i', 'o', 'u':
			// vowels other than a leading one are skipped
		case 'b':
			if !(i == n-1 && i > 0 && s[i-1] == 'm') {
				b.WriteByte('b')
			}
		case 'c':
			switch {
			case next == 'i' && i+2 < n && s[i+2] == 'a':
				b.WriteByte('x')
			case next == 'h':
				b.WriteByte('x')
				i++
			case next == 'i' || next == 'e' || next == 'y':
				b.WriteByte('s')
			default:
				b.WriteByte('k')
			}
		case 'd':
			if next == 'g' && i+2 < n && (s[i+2] == 'e' || s[i+2] == 'y' || s[i+2] == 'i') {
				b.WriteByte('j')
				i += 2
			} else {
				b.WriteByte('t')
			}
		case 'g':
			switch {
			case next == 'h' && !(i+2 < n && isVowel(s[i+2])):
				// silent gh
			case next == 'n':
				// silent gn
			case next == 'i' || next == 'e' || next == 'y':
				b.WriteByte('j')
			default:
				b.WriteByte('k')
			}
		case 'h':
			if isVowelByte(prev) && !isVowel(next) {
				// silent h after vowel, before consonant
			} else {
				b.WriteByte('h')
			}
		case 'k':
			if prev != 'c' {
				b.WriteByte('k')
			}
		case 'p':
			if next == 'h' {
				b.WriteByte('f')
				i++
			} else {
				b.WriteByte('p')
			}
		case 'q':
			b.WriteByte('k')
		case 's':
			switch {
			case next == 'h':
				b.WriteByte('x')
				i++
			case next == 'i' && i+2 < n && (s[i+2] == 'o' || s[i+2] == 'a'):
				b.WriteByte('x')
			default:
				b.WriteByte('s')
			}
		case 't':
			switch {
			case next == 'h':
				b.WriteByte('0')
				i++
			case next == 'i' && i+2 < n && (s[i+2] == 'o' || s[i+2] == 'a'):
				b.WriteByte('x')
			default:
				b.WriteByte('t')
			}
		case 'v':
			b.WriteByte('f')
		case 'w', 'y':
			if isVowel(next) {
				b.WriteByte(c)
			}
		case 'x':
			b.WriteByte('k')
			b.WriteByte('s')
		case 'z':
			b.WriteByte('s')
		default:
			b.WriteByte(c)
		}
		prev = c
	}
	out := b.String()
	if len(out) > 6 {
		out = out[:6]
	}
	return strings.ToUpper(out)
}

func isVowelByte(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
