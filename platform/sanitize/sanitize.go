// Package sanitize provides text sanitization for free-text lead fields.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`[ \t]+`)
)

// stripHTML removes all HTML tags from a string.
func stripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&#39;", "'").Replace(result)
	// entities may have hidden tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips HTML, collapses runs of spaces and caps the result at maxRunes
// (0 means no cap). Use for lead messages and reassignment notes.
func Text(s string, maxRunes int) string {
	result := whitespaceRegex.ReplaceAllString(stripHTML(s), " ")
	if maxRunes > 0 && utf8.RuneCountInString(result) > maxRunes {
		result = string([]rune(result)[:maxRunes])
	}
	return result
}
