package extractor

import (
	"regexp"
	"strings"
)

var (
	// ASCII whitespace plus the Unicode spaces browsers treat as whitespace
	// (NBSP, en/em spaces, line and paragraph separators, BOM).
	whitespaceRun = regexp.MustCompile(`[\s\v\x{00A0}\x{1680}\x{2000}-\x{200A}\x{2028}\x{2029}\x{202F}\x{205F}\x{3000}\x{FEFF}]+`)
	// LRM, RLM and the LRE/RLE/PDF/LRO/RLO embedding controls.
	bidiMarks = regexp.MustCompile(`[\x{200E}\x{200F}\x{202A}-\x{202E}]`)
)

// CleanText collapses whitespace runs to a single space, strips directional
// marks and trims the result.
func CleanText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = bidiMarks.ReplaceAllString(text, "")
	// A mark removed from between two spaces leaves a double space behind.
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
