package chunker

import (
	"regexp"
	"strings"
)

// Document-control boilerplate that repeats on every page of a typical
// manual: headers, footers, revision blocks. These add nothing to the
// section content and pollute embeddings, so they are stripped before
// chunking.
var noiseLineRe = regexp.MustCompile(`(?i)(?:^|\b)(` +
	`document\s*no|rev\.?\s*no|revision|date\s+issued|issue\s*date|` +
	`document\s+(owner|originator|approver)|` +
	`disclaimer|uncontrolled\s+copy|page\s*:?\s*\d+\s*of\s*\d+` +
	`)\b`)

// dottedLeaderRe matches table-of-contents rows ("Bailout ..... 12").
var dottedLeaderRe = regexp.MustCompile(`\.{5,}\s*\d+\s*$`)

// isNoiseLine reports whether a line is a repeating header/footer/admin
// line. Matching runs over whitespace-normalized text so merged footer
// fields on one long line are still caught.
func isNoiseLine(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	s = strings.Join(strings.Fields(s), " ")
	return noiseLineRe.MatchString(s)
}

// Clean removes noise lines, TOC rows, and collapses blank runs to at
// most two lines. The chunker's lossless-coverage guarantee holds over
// the cleaned text.
func Clean(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blankRun := 0

	for _, line := range lines {
		s := strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(s)

		if trimmed == "" {
			blankRun++
			if blankRun <= 2 {
				out = append(out, "")
			}
			continue
		}
		blankRun = 0

		if isNoiseLine(s) {
			continue
		}
		if strings.Contains(strings.ToLower(trimmed), "table of contents") {
			continue
		}
		if dottedLeaderRe.MatchString(trimmed) {
			continue
		}
		out = append(out, s)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// isTOCLike detects index-style sections that slipped past line
// cleaning: a quarter or more of their lines end in dotted leaders.
func isTOCLike(text string) bool {
	if text == "" {
		return false
	}
	if strings.Contains(strings.ToLower(text), "table of contents") {
		return true
	}

	var total, tocish int
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		total++
		if dottedLeaderRe.MatchString(ln) {
			tocish++
		}
	}
	if total == 0 {
		return false
	}
	return float64(tocish)/float64(total) >= 0.25
}

var symbolRunRe = regexp.MustCompile(`[\s•xX\-*]+`)

// hasRealContent reports whether a section still carries enough prose
// after bullets and list symbols are squashed.
func hasRealContent(text string, minChars int) bool {
	t := symbolRunRe.ReplaceAllString(text, " ")
	return len(strings.TrimSpace(t)) >= minChars
}
