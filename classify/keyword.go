package classify

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lower-cases and trims text for case-insensitive matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ContainsAny checks for any of the given substrings. Terms are matched
// as-is; callers normalize first.
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// CountAny returns how many of the given substrings appear at least once.
func CountAny(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			n++
		}
	}
	return n
}

// CountLinks counts URL scheme occurrences. The two schemes are counted
// separately; "https://" does not also match "http://".
func CountLinks(text string) int {
	return strings.Count(text, "http://") + strings.Count(text, "https://")
}

// StripTags removes the given hashtags (case-insensitive) and collapses the
// whitespace left behind.
func StripTags(text string, tags []string) string {
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		for {
			idx := strings.Index(strings.ToLower(text), strings.ToLower(tag))
			if idx < 0 {
				break
			}
			text = text[:idx] + text[idx+len(tag):]
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
