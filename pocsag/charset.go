package pocsag

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// reencode maps message text into the 7-bit pager alphabet for the given
// charset. Raw text passes through untouched.
func reencode(msg string, cs Charset) []byte {
	switch cs {
	case Latin:
		return reencodeLatin(msg)
	case Cyrillic:
		return reencodeCyrillic(msg)
	}
	return []byte(msg)
}

// reencodeLatin keeps printable 7-bit text, drops carriage returns and
// remaps the few characters pagers display specially.
func reencodeLatin(msg string) []byte {
	out := make([]byte, 0, len(msg))
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		switch {
		case c == '\r':
		case c == ']':
			out = append(out, 0x1E)
		case c == '[':
			out = append(out, 0x1F)
		case c == 'U':
			out = append(out, 0x1B)
		case c == '\n' || (c >= 0x1A && c <= 0x7E):
			out = append(out, c)
		default:
			out = append(out, '?')
		}
	}
	return out
}

// The 33-letter Cyrillic pager alphabet. Uppercase letters transmit in the
// lowercase ASCII region and vice versa, following the 7-bit KOI tradition
// Cyrillic pagers use. Tables are indexed А..Я in alphabet order.
var (
	cyrUpper = [32]byte{
		'a', 'b', 'w', 'g', 'd', 'e', 'v', 'z', 'i', 'j', 'k', 'l', 'm',
		'n', 'o', 'p', 'r', 's', 't', 'u', 'f', 'h', 'c', '~', '{', '}',
		0x7F, 'y', 'x', '|', '`', 'q',
	}
	cyrLower = [32]byte{
		'A', 'B', 'W', 'G', 'D', 'E', 'V', 'Z', 'I', 'J', 'K', 'L', 'M',
		'N', 'O', 'P', 'R', 'S', 'T', 'U', 'F', 'H', 'C', '^', '[', ']',
		'_', 'Y', 'X', '\\', '@', 'Q',
	}
)

// cyrillicByte maps one rune to its pager byte. Printable ASCII and
// newlines pass through; anything else unmappable becomes '?'.
func cyrillicByte(r rune) byte {
	switch {
	case r == 'Ё':
		return 'e'
	case r == 'ё':
		return 'E'
	case r >= 'А' && r <= 'Я':
		return cyrUpper[r-'А']
	case r >= 'а' && r <= 'я':
		return cyrLower[r-'а']
	case r == '\n':
		return '\n'
	case r >= 0x20 && r < 0x7F:
		return byte(r)
	}
	return '?'
}

// reencodeCyrillic maps UTF-8 text through the pager alphabet. Text that
// isn't valid UTF-8 is assumed to be CP-1251 and decoded first. The result
// is always zero terminated.
func reencodeCyrillic(msg string) []byte {
	out := make([]byte, 0, len(msg)+1)
	if utf8.ValidString(msg) {
		for _, r := range msg {
			out = append(out, cyrillicByte(r))
		}
	} else {
		for i := 0; i < len(msg); i++ {
			out = append(out, cyrillicByte(charmap.Windows1251.DecodeByte(msg[i])))
		}
	}
	return append(out, 0)
}
