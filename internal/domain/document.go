package domain

import (
	"fmt"
	"strings"
	"time"
)

// Classification is the document-level type of a source.
type Classification string

const (
	ClassManual      Classification = "manual"
	ClassStandard    Classification = "standard"
	ClassLegislation Classification = "legislation"
	ClassGuidance    Classification = "guidance"
	ClassClientSpec  Classification = "client-specification"
)

// Classifications lists all valid document classifications.
var Classifications = []Classification{
	ClassManual, ClassStandard, ClassLegislation, ClassGuidance, ClassClientSpec,
}

// ParseClassification validates a classification string.
func ParseClassification(s string) (Classification, error) {
	for _, c := range Classifications {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown classification %q: %w", s, ErrInvalidArgument)
}

// classKeywords maps classifications to the phrases that identify them,
// checked most-specific first so generic words do not match too early.
var classKeywords = []struct {
	class    Classification
	keywords []string
}{
	{ClassClientSpec, []string{"client specification", "company standard", "project specification"}},
	{ClassLegislation, []string{"act", "regulation", "law", "statutory"}},
	{ClassStandard, []string{"imca", "norsok", "dmac", "iogp", "iso", "standard"}},
	{ClassGuidance, []string{"guidance", "recommended practice", "code of practice"}},
	{ClassManual, []string{"operations manual", "procedure", "manual"}},
}

// DetectClassification guesses a classification from the document name and
// an opening sample of its text. Defaults to manual.
func DetectClassification(name, text string) Classification {
	sample := text
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	combined := strings.ToLower(name + " " + sample)

	for _, entry := range classKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.class
			}
		}
	}
	return ClassManual
}

// Document is an ingested source identified by its unique name.
type Document struct {
	Name               string
	Classification     Classification
	ComplianceStandard string
	EffectiveDate      *time.Time
	SupersededBy       string
	MandatoryReview    *time.Time
	SourcePath         string
	IngestedAt         time.Time
}

// DocumentMetadata carries caller-supplied attributes at ingest or update time.
// Zero values leave auto-detection (classification) or existing values in place.
type DocumentMetadata struct {
	Classification     Classification
	ComplianceStandard string
	EffectiveDate      *time.Time
	SupersededBy       string
	MandatoryReview    *time.Time
	SourcePath         string
}
