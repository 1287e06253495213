// Package tagging derives operational tags for a section: diving
// modes, physiology and gas hazards, systems and equipment, normative
// requirement strength, and conflict-sensitive limit qualifiers.
//
// Every table is fixed and evaluated in a stable order, so repeated
// runs over the same section always produce the same tag sequence.
package tagging

import (
	"strings"

	"github.com/divekit/manualindex/internal/domain"
)

// textWindow limits how much body text participates in tag matching;
// the opening of a section names its subject.
const textWindow = 1000

// qualifierWindow is the number of bytes of context kept on each side
// of a matched qualifier keyword.
const qualifierWindow = 30

type tagEntry struct {
	tag      string
	keywords []string
}

// divingModes maps mode tags to their trigger phrases.
var divingModes = []tagEntry{
	{"air", []string{"air diving", "surface supplied air"}},
	{"nitrox", []string{"nitrox", "surface supplied nitrox", "enriched air"}},
	{"surdo2", []string{"surface decompression", "surdo2", "decompression on oxygen"}},
	{"tup", []string{"transfer under pressure", "tup"}},
	{"saturation", []string{"saturation diving", "sat diving"}},
	{"dp", []string{"dynamic positioning", "dp vessel"}},
}

// physiology maps physiology and gas hazard tags to trigger phrases.
var physiology = []tagEntry{
	{"oxygen", []string{"oxygen", "ppo2", "hyperoxia", "cns", "otu"}},
	{"carbon_dioxide", []string{"carbon dioxide", "co2", "hypercapnia"}},
	{"nitrogen", []string{"nitrogen", "narcosis"}},
	{"hypoxia", []string{"hypoxia", "low oxygen"}},
	{"barotrauma", []string{"barotrauma", "lung overexpansion"}},
	{"dcs", []string{"decompression sickness", "dcs", "the bends"}},
	{"age", []string{"arterial gas embolism"}},
}

// systems maps equipment tags to trigger phrases.
var systems = []tagEntry{
	{"chamber", []string{"ddc", "deck decompression chamber", "chamber", "medical lock", "inner lock", "outer lock"}},
	{"lars", []string{"lars", "launch and recovery system"}},
	{"umbilical", []string{"umbilical"}},
	{"bailout", []string{"bail-out bottle", "bailout bottle"}},
	{"breathing_interface", []string{"bib", "helmet", "mask"}},
	{"gas_supply", []string{"compressor", "air quad", "oxygen bank", "gas storage"}},
}

// Normative strength levels.
const (
	Prohibited  = "prohibited"
	Mandatory   = "mandatory"
	Recommended = "recommended"
)

// normative is ordered most restrictive first: a section saying both
// "shall" and "shall not" reads as a prohibition.
var normative = []tagEntry{
	{Prohibited, []string{"shall not", "must not", "not permitted"}},
	{Mandatory, []string{"shall", "must", "required", "mandatory"}},
	{Recommended, []string{"should", "recommended"}},
}

// qualifiers maps limit-qualifier types to their trigger phrases.
var qualifiers = []tagEntry{
	{"min_limit", []string{"minimum", "at least", "not less than"}},
	{"max_limit", []string{"maximum", "no more than", "not greater than"}},
	{"limit", []string{"limit", "threshold"}},
}

func matchTags(table []tagEntry, heading, text string) []string {
	if len(text) > textWindow {
		text = text[:textWindow]
	}
	combined := strings.ToLower(heading + " " + text)

	var tags []string
	for _, entry := range table {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				tags = append(tags, entry.tag)
				break
			}
		}
	}
	return tags
}

// DivingModes returns the diving modes a section mentions, in table order.
func DivingModes(heading, text string) []string {
	return matchTags(divingModes, heading, text)
}

// Physiology returns the physiology and gas hazard tags for a section.
func Physiology(heading, text string) []string {
	return matchTags(physiology, heading, text)
}

// Systems returns the systems and equipment tags for a section.
func Systems(heading, text string) []string {
	return matchTags(systems, heading, text)
}

// NormativeLanguage returns the strongest requirement level stated in
// the text, or "" when none is present.
func NormativeLanguage(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range normative {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.tag
			}
		}
	}
	return ""
}

// ConflictQualifiers returns the limit qualifiers found in text. Each
// matched keyword yields one qualifier carrying its first occurrence's
// surrounding context for human review.
func ConflictQualifiers(text string) []domain.Qualifier {
	lower := strings.ToLower(text)

	var found []domain.Qualifier
	for _, entry := range qualifiers {
		for _, kw := range entry.keywords {
			idx := strings.Index(lower, kw)
			if idx < 0 {
				continue
			}
			start := idx - qualifierWindow
			if start < 0 {
				start = 0
			}
			end := idx + len(kw) + qualifierWindow
			if end > len(text) {
				end = len(text)
			}
			found = append(found, domain.Qualifier{
				Type:    entry.tag,
				Keyword: kw,
				Context: strings.TrimSpace(text[start:end]),
			})
		}
	}
	return found
}
