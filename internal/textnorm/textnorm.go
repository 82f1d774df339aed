// Package textnorm provides the pure text helpers used to turn feed markup
// into short plain-text excerpts.
package textnorm

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ellipsis is appended to excerpts that were shortened.
const Ellipsis = "…"

var (
	scriptBlocks = regexp.MustCompile(`(?is)<(script|style|noscript|template)[^>]*>.*?</(script|style|noscript|template)>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags    = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|blockquote|section|article|tr|td)[^>]*>`)
	anyTag       = regexp.MustCompile(`(?s)<[^>]*>`)
)

// DecodeEntities expands HTML character references. Feeds frequently
// double-encode, so decoding repeats until the text stops changing.
func DecodeEntities(s string) string {
	for i := 0; i < 3; i++ {
		next := html.UnescapeString(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}

// StripTags removes markup and collapses whitespace. Block-level tags become
// spaces so adjacent paragraphs do not run together.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	s = scriptBlocks.ReplaceAllString(s, " ")
	s = htmlComments.ReplaceAllString(s, " ")
	s = blockTags.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, "")
	s = DecodeEntities(s)
	return CollapseSpace(s)
}

// CollapseSpace trims and reduces every whitespace run to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most limit runes, cutting on a word boundary when
// one exists in the last fifth of the window, and appends Ellipsis. The
// result never exceeds limit runes including the ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := limit - utf8.RuneCountInString(Ellipsis)
	if cut <= 0 {
		return string(runes[:limit])
	}
	head := runes[:cut]
	if idx := lastSpace(head); idx >= cut*4/5 {
		head = head[:idx]
	}
	return strings.TrimRight(string(head), " ,;:.-") + Ellipsis
}

// Excerpt strips markup and truncates in one step.
func Excerpt(markup string, limit int) string {
	return Truncate(StripTags(markup), limit)
}

// RuneLen reports the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
