package core

import (
	"strings"
	"unicode/utf8"
)

// EncodeText converts text to its UTF-8 byte payload.
func EncodeText(s string) []byte {
	return []byte(s)
}

// DecodeText converts a payload to text. Invalid UTF-8 sequences are
// replaced with U+FFFD; no other validation is done.
func DecodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
