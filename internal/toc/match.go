// Package toc detects a book's table of contents with a structured LLM
// call and matches its entries back into the body text.
package toc

import (
	"regexp"
	"strings"
)

// matchLineLimit is the longest line the word-overlap heuristic will
// accept as a heading. Prose lines run longer.
const matchLineLimit = 150

// prefixPatterns are heading decorations that may precede a TOC title in
// the body ("Chapter 3: ", "Part II ", "7. ").
var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chapter\s+\w+\s*[:.\-]?\s*`),
	regexp.MustCompile(`(?i)^part\s+\w+\s*[:.\-]?\s*`),
	regexp.MustCompile(`(?i)^section\s+\w+\s*[:.\-]?\s*`),
	regexp.MustCompile(`^\d+\s*[.:]\s*`),
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)
var multiSpace = regexp.MustCompile(`\s+`)

// dotLeader matches TOC-style lines ending in a dot leader and page
// number ("Chapter 1 Alpha .... 5"). The overlap heuristic must not
// match the TOC listing itself.
var dotLeader = regexp.MustCompile(`\.{2,}\s*\d+\s*$`)

// NormalizeTitle lowercases, strips punctuation, and collapses whitespace.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// FuzzyMatchTitle searches text forward from startFrom for a line that
// carries the normalized title. Match strategies, in order: exact
// normalized equality, prefix-augmented equality ("chapter N:" etc.
// stripped first), then a word-overlap heuristic (70% of the title's
// significant words on one short line). Returns the byte offset of the
// matched line, or -1.
func FuzzyMatchTitle(text, normalizedTitle string, startFrom int) int {
	if normalizedTitle == "" || startFrom >= len(text) {
		return -1
	}

	titleWords := significantWords(normalizedTitle)

	offset := startFrom
	for _, line := range strings.Split(text[startFrom:], "\n") {
		lineStart := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		normalized := NormalizeTitle(trimmed)
		if normalized == normalizedTitle {
			return lineStart
		}

		// Heading prefix in the body but not in the TOC entry.
		stripped := trimmed
		for _, p := range prefixPatterns {
			stripped = p.ReplaceAllString(stripped, "")
		}
		if stripped != trimmed && NormalizeTitle(stripped) == normalizedTitle {
			return lineStart
		}

		if len(trimmed) < matchLineLimit && !dotLeader.MatchString(trimmed) && wordOverlap(titleWords, normalized) >= 0.7 {
			return lineStart
		}
	}
	return -1
}

// significantWords returns the title's words longer than 3 characters.
func significantWords(normalized string) []string {
	var words []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}

// wordOverlap returns the fraction of words present in the candidate line.
func wordOverlap(words []string, normalizedLine string) float64 {
	if len(words) == 0 {
		return 0
	}
	lineWords := make(map[string]bool)
	for _, w := range strings.Fields(normalizedLine) {
		lineWords[w] = true
	}
	found := 0
	for _, w := range words {
		if lineWords[w] {
			found++
		}
	}
	return float64(found) / float64(len(words))
}
