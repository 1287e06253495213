// Package chunker splits raw document text into an ordered sequence of
// hierarchical sections bounded by numbered headings.
//
// The split is deterministic and lossless over its input: every line
// either becomes the heading recorded on the section that follows it,
// or is appended to exactly one section's text. Nesting follows a
// stack of open headings keyed by structural level (the count of
// numeric segments in the heading number), with no validation of the
// numbering itself — "1.5" followed by "1.2" is accepted as-is.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultMaxChars is the per-section character budget before an
// oversized section is split into continuation sections.
const DefaultMaxChars = 1400

// Section is one chunk of a document. A document's preamble (text
// before the first heading) is emitted at level 0 with no heading.
type Section struct {
	// Heading is the full heading line ("1.5 Bailout Gas"), empty for
	// preamble sections.
	Heading string
	// HeadingNum is the numeric prefix ("1.5"), empty for preamble.
	HeadingNum string
	// Path holds the open ancestor headings, outermost first,
	// including this section's own heading.
	Path []string
	// Level is the count of numeric segments in HeadingNum; 0 for
	// preamble sections.
	Level int
	// Text is the section body, headings excluded.
	Text string
}

// Chunker splits text on heading structure. It is stateless and safe
// for reuse across documents.
type Chunker struct {
	maxChars int
}

// New creates a chunker. maxChars <= 0 selects DefaultMaxChars.
func New(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Chunker{maxChars: maxChars}
}

var headingRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+(.*\S)\s*$`)

// parseHeading returns the heading number and title if the line is a
// numbered heading. The title must contain a letter so that rows like
// "1 5" are not mistaken for headings.
func parseHeading(line string) (num, title string, ok bool) {
	m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	if !strings.ContainsFunc(m[2], isLetter) {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// headingLevel is the count of numeric segments: "1.5.2" -> 3.
func headingLevel(num string) int {
	return strings.Count(num, ".") + 1
}

var (
	wideGapRe = regexp.MustCompile(`\S\s{3,}\S`)
	numbersRe = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	letterRe  = regexp.MustCompile(`[A-Za-z]`)
)

// isTableish rejects table and list rows that would otherwise parse as
// headings because they start with a number.
func isTableish(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	if dottedLeaderRe.MatchString(t) {
		return false
	}
	if strings.Contains(t, "|") {
		return true
	}
	if len(wideGapRe.FindAllString(t, -1)) >= 2 {
		return true
	}
	// rows that are numbers all the way across
	if len(numbersRe.FindAllString(t, -1)) >= 3 && !letterRe.MatchString(t) {
		return true
	}
	return false
}

// isHeading applies the structural gates before parsing: plausible
// length, not a TOC row, not a table row.
func isHeading(line string) bool {
	s := strings.TrimSpace(line)
	if len(s) < 3 || len(s) > 140 {
		return false
	}
	if dottedLeaderRe.MatchString(s) {
		return false
	}
	if isTableish(line) {
		return false
	}
	_, _, ok := parseHeading(s)
	return ok
}

// openHeading is one stack entry: a heading currently in scope.
type openHeading struct {
	num   string
	title string
	level int
}

func (h openHeading) display() string {
	return strings.TrimSpace(h.num + " " + h.title)
}

// Split chunks text into sections. A document with no headings yields
// exactly one level-0 section holding the whole text.
func (c *Chunker) Split(text string) []Section {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		sections []Section
		stack    []openHeading
		lines    []string
		size     int
	)

	flush := func() {
		body := strings.Join(lines, "\n")
		if len(stack) == 0 && strings.TrimSpace(body) == "" {
			// no open heading and nothing accumulated: skip
			lines, size = nil, 0
			return
		}
		sec := Section{Text: strings.Trim(body, "\n")}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			sec.Heading = top.display()
			sec.HeadingNum = top.num
			sec.Level = top.level
			sec.Path = make([]string, len(stack))
			for i, h := range stack {
				sec.Path[i] = h.display()
			}
		}
		sections = append(sections, sec)
		lines, size = nil, 0
	}

	seenHeading := false
	for _, line := range strings.Split(text, "\n") {
		if isHeading(line) {
			num, title, _ := parseHeading(line)
			level := headingLevel(num)

			if seenHeading || len(lines) > 0 {
				flush()
			}
			seenHeading = true

			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, openHeading{num: num, title: title, level: level})
			continue
		}

		lines = append(lines, strings.TrimRight(line, " \t\r"))
		size += len(line) + 1

		if size >= c.maxChars {
			flush()
		}
	}
	flush()

	return sections
}

// minSectionChars is the prose threshold below which a section is
// considered noise-only.
const minSectionChars = 40

// DropNoise removes sections that are blank, index-like, or carry no
// real prose. Ingestion applies this after Split; the lossless
// guarantee belongs to Split itself.
func DropNoise(sections []Section) []Section {
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		if isTOCLike(t) {
			continue
		}
		if !hasRealContent(t, minSectionChars) {
			continue
		}
		out = append(out, s)
	}
	return out
}
