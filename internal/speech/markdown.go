// Package speech covers voice in and voice out: a single-shot recognizer
// behind a toggle, and a synthesizer that never overlaps utterances.
package speech

import (
	"regexp"
	"strings"
)

var markdownRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), ""},
	{regexp.MustCompile("`[^`]+`"), ""},
	{regexp.MustCompile(`\*\*\*(.+?)\*\*\*`), "$1"},
	{regexp.MustCompile(`\*\*(.+?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.+?)\*`), "$1"},
	{regexp.MustCompile(`__(.+?)__`), "$1"},
	{regexp.MustCompile(`_(.+?)_`), "$1"},
	{regexp.MustCompile(`~~(.+?)~~`), "$1"},
	{regexp.MustCompile(`(?m)^#{1,6}\s+`), ""},
	// images go before links, otherwise the link rule leaves a stray "!alt"
	{regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`), ""},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`(?m)^>\s+`), ""},
	{regexp.MustCompile(`(?m)^[-*_]{3,}$`), ""},
	{regexp.MustCompile(`(?m)^\s*[-*+]\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*\d+\.\s+`), ""},
	{regexp.MustCompile(`<[^>]+>`), ""},
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
	{regexp.MustCompile(`\s+`), " "},
}

// CleanMarkdown turns a markdown reply into plain text fit for a speech
// engine: formatting markers, code, images and HTML are dropped, link
// text is kept, and all whitespace collapses to single spaces.
func CleanMarkdown(text string) string {
	for _, r := range markdownRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}
