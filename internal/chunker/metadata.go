package chunker

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxHeadings      = 3
	maxHeadingLength = 100
	maxKeywords      = 5
	minKeywordLength = 4
)

// extractMetadata tags heading-like lines and repeated words. The result is
// advisory and never used for retrieval decisions.
func extractMetadata(text string) string {
	var lines []string
	for _, h := range headings(text) {
		lines = append(lines, "heading: "+h)
	}
	if kw := keywords(text); len(kw) > 0 {
		lines = append(lines, "keywords: "+strings.Join(kw, ", "))
	}
	return strings.Join(lines, "\n")
}

// headings returns up to three short lines that are ALL-CAPS or end in ':'.
func headings(text string) []string {
	var found []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || utf8.RuneCountInString(line) >= maxHeadingLength {
			continue
		}
		if strings.HasSuffix(line, ":") || isAllCaps(line) {
			found = append(found, line)
			if len(found) == maxHeadings {
				break
			}
		}
	}
	return found
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// keywords returns the five most frequent words longer than three
// characters that occur more than once, compared case-insensitively.
// Ties keep first-occurrence order.
func keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if utf8.RuneCountInString(w) < minKeywordLength {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	var repeated []string
	for _, w := range order {
		if counts[w] > 1 {
			repeated = append(repeated, w)
		}
	}
	sort.SliceStable(repeated, func(i, j int) bool {
		return counts[repeated[i]] > counts[repeated[j]]
	})
	if len(repeated) > maxKeywords {
		repeated = repeated[:maxKeywords]
	}
	return repeated
}
