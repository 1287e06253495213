// Package topic derives stable grouping keys from heading text.
//
// The key is a pure function of the heading: the same heading text
// anywhere in the corpus always yields the same key, and two headings
// that differ only in their numbering prefix ("1.5 Bailout Gas" vs
// "2.9 Bailout Gas") yield the same key. This is what lets the
// conflict detector associate sections across documents.
package topic

import (
	"regexp"
	"strings"
)

// Unclassified is the reserved key for empty or purely numeric headings.
const Unclassified = "unclassified"

// maxKeyLen bounds key length; longer keys are cut at a word boundary.
const maxKeyLen = 100

var (
	numPrefixRe = regexp.MustCompile(`^[\d.]+\s*`)
	nonSlugRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Key returns the topic key for a heading.
func Key(heading string) string {
	text := numPrefixRe.ReplaceAllString(strings.TrimSpace(heading), "")
	text = strings.ToLower(text)
	text = nonSlugRe.ReplaceAllString(text, "_")
	text = strings.Trim(text, "_")

	if text == "" {
		return Unclassified
	}

	if len(text) > maxKeyLen {
		cut := text[:maxKeyLen]
		if idx := strings.LastIndex(cut, "_"); idx > 0 {
			cut = cut[:idx]
		}
		text = cut
	}
	return text
}
