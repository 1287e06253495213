package units

import (
	"math"
	"testing"
)

func TestExtract_BasicMentions(t *testing.T) {
	text := "Maximum depth 30 metres. Bailout pressure not less than 50 bar."
	mentions := Extract(text)
	if len(mentions) != 2 {
		t.Fatalf("expected 2 mentions, got %d: %+v", len(mentions), mentions)
	}
	if mentions[0].Unit != Meters || mentions[0].Value != 30 {
		t.Errorf("unexpected first mention: %+v", mentions[0])
	}
	if mentions[1].Unit != Bar || mentions[1].Value != 50 {
		t.Errorf("unexpected second mention: %+v", mentions[1])
	}
}

func TestExtract_Variants(t *testing.T) {
	tests := []struct {
		text string
		unit string
		val  float64
	}{
		{"depth limit 100 feet", Feet, 100},
		{"depth limit 100ft", Feet, 100},
		{"no more than 98.4 ft", Feet, 98.4},
		{"supply of 2400 litres", Litres, 2400},
		{"supply of 85 cf", CubicFeet, 85},
		{"supply of 3 cu ft", CubicFeet, 3},
		{"ascent to 6 m", Meters, 6},
		{"chamber at 2.8 ata", ATA, 2.8},
		{"chamber at 2.8 atm", ATA, 2.8},
		{"hose rated 200 PSI", PSI, 200},
	}
	for _, tt := range tests {
		mentions := Extract(tt.text)
		if len(mentions) == 0 {
			t.Errorf("Extract(%q) found nothing", tt.text)
			continue
		}
		m := mentions[0]
		if m.Unit != tt.unit || m.Value != tt.val {
			t.Errorf("Extract(%q) = %v %s, want %v %s", tt.text, m.Value, m.Unit, tt.val, tt.unit)
		}
	}
}

func TestExtract_NoFalseMeters(t *testing.T) {
	// "30 minutes" must not yield a meters mention.
	for _, m := range Extract("surface interval of 30 minutes") {
		if m.Unit == Meters {
			t.Fatalf("false meters mention: %+v", m)
		}
	}
}

func TestExtract_ContextWindow(t *testing.T) {
	text := "The emergency bailout cylinder shall hold at least 50 bar before any dive commences."
	mentions := Extract(text)
	if len(mentions) != 1 {
		t.Fatalf("expected 1 mention, got %d", len(mentions))
	}
	ctx := mentions[0].Context
	if len(ctx) == 0 || len(ctx) > len("50 bar")+2*contextWindow {
		t.Fatalf("context window out of bounds: %q", ctx)
	}
}

func TestExtract_OverlapsKept(t *testing.T) {
	// A number near two unit tokens appears once per matching pattern.
	text := "30 m (98.4 ft)"
	mentions := Extract(text)
	if len(mentions) != 2 {
		t.Fatalf("expected 2 mentions, got %d: %+v", len(mentions), mentions)
	}
}

func TestConvert(t *testing.T) {
	table := DefaultConversions()

	got, ok := Convert(30, Meters, Feet, table)
	if !ok {
		t.Fatal("meters->feet conversion missing")
	}
	if math.Abs(got-98.4252) > 0.001 {
		t.Fatalf("30 m = %f ft, want ~98.43", got)
	}

	// Identity conversion always succeeds.
	if v, ok := Convert(7, Bar, Bar, table); !ok || v != 7 {
		t.Fatalf("identity conversion broken: %v %v", v, ok)
	}

	// Cross-family pairs have no entry.
	if _, ok := Convert(1, Bar, Meters, table); ok {
		t.Fatal("bar->meters must not convert")
	}
}

func TestDefaultTolerances_CoverAllSymbols(t *testing.T) {
	tol := DefaultTolerances()
	for _, sym := range []string{Meters, Feet, Bar, PSI, ATA, Litres, CubicFeet} {
		if _, ok := tol[sym]; !ok {
			t.Errorf("no tolerance for %s", sym)
		}
	}
}
