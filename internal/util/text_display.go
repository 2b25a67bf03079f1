package util

import (
	"strings"
	"unicode"
)

const defaultPreviewRunes = 240

// Preview renders text for terminals and logs: sanitized, whitespace
// collapsed and cut to maxRunes with a trailing ellipsis.
func Preview(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = defaultPreviewRunes
	}
	s = normalizeWhitespace(SanitizeText(s))

	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			out = append(out, r)
		}
	}
	if len(out) > maxRunes {
		return strings.TrimSpace(string(out[:maxRunes])) + "..."
	}
	return string(out)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
