// Package emergency classifies sections as emergency procedures using
// a fixed keyword table. The table is evaluated in order and the first
// matching category wins, so classification is stable across
// re-ingestion.
package emergency

import "strings"

// Category of an emergency procedure.
type Category string

const (
	Bailout          Category = "bailout"
	EquipmentFailure Category = "equipment-failure"
	Medical          Category = "medical"
	Weather          Category = "weather"
	Decompression    Category = "decompression"
)

// textWindow limits how much body text participates in matching; the
// opening of a section names its subject.
const textWindow = 500

// table maps categories to their trigger phrases, in evaluation order.
var table = []struct {
	category Category
	keywords []string
}{
	{Bailout, []string{"bailout", "bail-out", "emergency gas", "loss of primary gas"}},
	{EquipmentFailure, []string{"equipment failure", "system failure", "loss of power", "malfunction"}},
	{Medical, []string{"medical emergency", "injury", "illness", "first aid", "drabc"}},
	{Weather, []string{"weather abort", "environmental conditions", "sea state"}},
	{Decompression, []string{"decompression sickness", "omitted decompression", "dcs", "the bends"}},
}

// Classify reports whether the heading or the opening of the text
// marks an emergency procedure, and under which category.
func Classify(heading, text string) (Category, bool) {
	if len(text) > textWindow {
		text = text[:textWindow]
	}
	combined := strings.ToLower(heading + " " + text)

	for _, entry := range table {
		for _, kw := range entry.keywords {
			if strings.Contains(combined, kw) {
				return entry.category, true
			}
		}
	}
	return "", false
}
