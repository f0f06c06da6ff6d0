// Package repair reverses code unit truncation in string payloads.
//
// The corruption this package undoes: text held as UTF-16 code units was
// written one byte per unit, keeping only the low 8 bits of each. The stored
// bytes are usually not valid UTF-8. Widening every byte back to a 16-bit
// unit and decoding the units as UTF-16 recovers the text exactly when the
// lost high bytes were zero (U+0000 through U+00FF), and recovers the best
// available approximation otherwise.
//
// No other heuristic is attempted: no codepage or language guessing.
package repair

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// utf16LE decodes little-endian UTF-16 and substitutes U+FFFD for ill-formed
// units (unpaired surrogates) instead of failing.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Valid reports whether b is well-formed UTF-8, the encoding BSON requires for strings.
func Valid(b []byte) bool {
	return utf8.Valid(b)
}

// Repair treats each byte of raw as one truncated UTF-16 code unit,
// zero-extends it, decodes the unit sequence permissively and returns the
// result as UTF-8.
func Repair(raw []byte) string {
	units := make([]byte, 2*len(raw))
	for i, b := range raw {
		units[2*i] = b
	}

	out, _, err := transform.Bytes(utf16LE.NewDecoder(), units)
	if err != nil {
		// The decoder replaces rather than rejects; an error here means a
		// transformer bug, so fall back to the lossy reading.
		return Lossy(raw)
	}
	return string(out)
}

// Lossy decodes raw as UTF-8, replacing each maximal invalid subsequence
// with one U+FFFD. The result always validates.
func Lossy(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}
