package smbenc

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// oemCharmap is the OEM code page used for non-Unicode clients.
var oemCharmap = charmap.CodePage850

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// EncodeOEM converts s to the OEM code page; unmappable runes become '_'.
func EncodeOEM(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		b, ok := oemCharmap.EncodeRune(r)
		if !ok {
			b = '_'
		}
		out = append(out, b)
	}
	return out
}

// DecodeOEM converts OEM code page bytes to a Go string.
func DecodeOEM(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = oemCharmap.DecodeByte(c)
	}
	return string(out)
}

// EncodeUTF16 converts s to UTF-16LE without a terminator.
func EncodeUTF16(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

// DecodeUTF16 converts UTF-16LE bytes to a Go string. Unpaired surrogates
// become U+FFFD.
func DecodeUTF16(b []byte) string {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}
