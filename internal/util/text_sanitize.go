package util

import (
	"strings"
	"unicode"
)

// SanitizeText prepares extracted or generated text for storage. Postgres
// text columns reject NUL, and stray C0/C1 controls, byte order marks and
// zero-width characters would otherwise shift rune offsets between runs.
// Newlines and tabs are kept.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n', r == '\r', r == '\t':
			b.WriteRune(r)
		case r == unicode.ReplacementChar, r == '\ufeff', r == '\u200b':
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
