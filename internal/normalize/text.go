package normalize

import (
	"regexp"
	"strings"
)

var (
	inlineSpace   = regexp.MustCompile(`[ \t\x{00a0}\x{202f}]+`)
	excessBlank   = regexp.MustCompile(`\n{3,}`)
	anyWhitespace = regexp.MustCompile(`\s+`)
)

// CleanText normalizes line endings and inline whitespace while keeping paragraph and bullet structure.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}

	result := excessBlank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

// CleanLine collapses all whitespace, newlines included, to single spaces.
func CleanLine(s string) string {
	return strings.TrimSpace(anyWhitespace.ReplaceAllString(s, " "))
}
