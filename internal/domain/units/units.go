// Package units extracts numeric unit mentions from section text and
// converts values between unit symbols of the same family.
//
// Both extraction and conversion are table-driven: an ordered list of
// (pattern, canonical symbol) pairs and a fixed conversion-factor map.
// Evaluation order is fixed so repeated runs over the same text always
// produce the same mention sequence.
package units

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/divekit/manualindex/internal/domain"
)

// Canonical unit symbols.
const (
	Meters    = "meters"
	Feet      = "feet"
	Bar       = "bar"
	PSI       = "psi"
	ATA       = "ata"
	Litres    = "litres"
	CubicFeet = "cubic_feet"
)

// contextWindow is the number of bytes kept on each side of a match.
const contextWindow = 20

// pattern pairs a compiled regex with the canonical symbol it yields.
// Group 1 is always the numeric value.
type pattern struct {
	re   *regexp.Regexp
	unit string
}

// patterns is evaluated in order; overlapping matches across patterns
// are kept as independent mentions.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(m|metres?|meters?)\b`), Meters},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ft|feet)\b`), Feet},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(bar)\b`), Bar},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(psi)\b`), PSI},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ata|atm)\b`), ATA},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(l|litres?|liters?)\b`), Litres},
	{regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(cf|cu\.?\s*ft)\b`), CubicFeet},
}

// Extract returns all unit mentions in text, in pattern-table order.
func Extract(text string) []domain.UnitMention {
	var mentions []domain.UnitMention
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[loc[2]:loc[3]]
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}

			start := loc[0] - contextWindow
			if start < 0 {
				start = 0
			}
			end := loc[1] + contextWindow
			if end > len(text) {
				end = len(text)
			}

			mentions = append(mentions, domain.UnitMention{
				Value:   value,
				Unit:    p.unit,
				Context: strings.TrimSpace(text[start:end]),
			})
		}
	}
	return mentions
}

// ConversionKey identifies a directed conversion between two symbols.
type ConversionKey struct {
	From string
	To   string
}

// DefaultConversions returns the built-in conversion-factor table.
// Pairs absent from the table (including every cross-family pair) are
// not comparable.
func DefaultConversions() map[ConversionKey]float64 {
	return map[ConversionKey]float64{
		{Meters, Feet}: 3.28084,
		{Feet, Meters}: 0.3048,

		{Bar, PSI}: 14.5038,
		{PSI, Bar}: 0.0689476,
		{Bar, ATA}: 1.01972,
		{ATA, Bar}: 0.980665,
		{PSI, ATA}: 0.068046,
		{ATA, PSI}: 14.6959,

		{Litres, CubicFeet}: 0.0353147,
		{CubicFeet, Litres}: 28.3168,
	}
}

// DefaultTolerances returns the built-in per-unit comparison
// tolerances. These are hand-picked operational values, overridable
// through configuration.
func DefaultTolerances() map[string]float64 {
	return map[string]float64{
		Meters:    0.01,
		Feet:      0.1,
		Bar:       0.1,
		PSI:       1.0,
		ATA:       0.1,
		Litres:    0.1,
		CubicFeet: 0.01,
	}
}

// Convert converts value from one symbol to another using the given
// table. Identical symbols convert with factor 1. The second return is
// false when no conversion entry exists.
func Convert(value float64, from, to string, table map[ConversionKey]float64) (float64, bool) {
	if from == to {
		return value, true
	}
	factor, ok := table[ConversionKey{From: from, To: to}]
	if !ok {
		return 0, false
	}
	return value * factor, true
}
