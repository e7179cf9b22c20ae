package validators

import (
	"strings"
	"unicode"
)

// SanitizeString collapses runs of whitespace, drops control characters and
// caps the result at maxLen runes. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
