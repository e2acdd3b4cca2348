// Package section splits markdown pack content at headings and extracts the part
// relevant to a query.
package section

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// CompactLimit caps compact grounding injected into every grounded prompt.
	CompactLimit = 800
	// DetailLimit caps the detailed section injected for depth requests.
	DetailLimit = 1500
	// TruncationMarker is appended whenever Cap shortens text.
	TruncationMarker = "... [truncated]"

	minQueryWordLen = 4
)

// Section is a heading-delimited segment of a document.
type Section struct {
	Heading string
	Text    string
}

var nonWord = regexp.MustCompile(`\W+`)

// isBoundary reports whether line is a level-2 or level-3 heading.
func isBoundary(line string) bool {
	hashes := 0
	for hashes < len(line) && line[hashes] == '#' {
		hashes++
	}
	if hashes < 2 || hashes > 3 || hashes == len(line) {
		return false
	}
	c := line[hashes]
	return c == ' ' || c == '\t'
}

// Split breaks text into sections at level-2/level-3 headings. Any text before the
// first such heading forms its own leading section.
func Split(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	var sections []Section
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			sections = append(sections, Section{
				Heading: strings.TrimSpace(current[0]),
				Text:    t,
			})
		}
		current = nil
	}

	for _, line := range lines {
		if isBoundary(line) && len(current) > 0 {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// QueryWords returns the lowercase words of query long enough to be significant.
func QueryWords(query string) []string {
	var words []string
	for _, w := range nonWord.Split(strings.ToLower(query), -1) {
		if len(w) >= minQueryWordLen {
			words = append(words, w)
		}
	}
	return words
}

// Extract returns the first section whose heading line contains a significant query
// word, or "" when nothing matches. Empty means no detailed grounding is available.
func Extract(full, query string) string {
	words := QueryWords(query)
	if len(words) == 0 {
		return ""
	}
	for _, s := range Split(full) {
		heading := strings.ToLower(s.Heading)
		for _, w := range words {
			if strings.Contains(heading, w) {
				return s.Text
			}
		}
	}
	return ""
}

// Cap keeps the first limit characters of text and appends TruncationMarker when
// anything was cut.
func Cap(text string, limit int) string {
	return CapWith(text, limit, TruncationMarker)
}

// CapWith is Cap with a caller-chosen marker.
func CapWith(text string, limit int, marker string) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + marker
}

// Tail returns the last limit characters of text behind an ellipsis marker.
func Tail(text string, limit int) string {
	r := []rune(text)
	if limit > 0 && len(r) > limit {
		r = r[len(r)-limit:]
	}
	return "... " + string(r)
}
