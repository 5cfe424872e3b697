package colorscience

import (
	"math"
	"testing"
	"testing/quick"
)

// TestKelvinToGains_KnownTemperatures verifies anchor points of the fit.
func TestKelvinToGains_KnownTemperatures(t *testing.T) {
	tests := []struct {
		name    string
		kelvin  int
		wantHot string // which side of neutral each ratio falls on
	}{
		{name: "candle flame is red heavy", kelvin: 2000, wantHot: "red"},
		{name: "incandescent is red heavy", kelvin: 2700, wantHot: "red"},
		{name: "shade is blue heavy", kelvin: 9000, wantHot: "blue"},
		{name: "clear sky is blue heavy", kelvin: 12000, wantHot: "blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := KelvinToGains(tt.kelvin)

			switch tt.wantHot {
			case "red":
				if g.R <= 1.0 {
					t.Errorf("Expected R > 1.0 at %dK, got %.3f", tt.kelvin, g.R)
				}
				if g.B >= 1.0 {
					t.Errorf("Expected B < 1.0 at %dK, got %.3f", tt.kelvin, g.B)
				}
			case "blue":
				if g.R >= 1.0 {
					t.Errorf("Expected R < 1.0 at %dK, got %.3f", tt.kelvin, g.R)
				}
				if g.B <= 1.0 {
					t.Errorf("Expected B > 1.0 at %dK, got %.3f", tt.kelvin, g.B)
				}
			}
		})
	}
}

// TestKelvinToGains_DaylightNeutral verifies the D65 neighborhood is
// close to unity on every channel.
func TestKelvinToGains_DaylightNeutral(t *testing.T) {
	g := KelvinToGains(6500)

	if math.Abs(g.R-1.0) > 0.1 {
		t.Errorf("Expected R within 0.1 of neutral at 6500K, got %.3f", g.R)
	}
	if math.Abs(g.B-1.0) > 0.1 {
		t.Errorf("Expected B within 0.1 of neutral at 6500K, got %.3f", g.B)
	}
	if g.Gr != 1.0 || g.Gb != 1.0 {
		t.Errorf("Expected green channels exactly 1.0, got Gr=%.3f Gb=%.3f", g.Gr, g.Gb)
	}
}

// TestKelvinToGains_ClampsInput verifies out-of-range temperatures behave
// like the nearest bound.
func TestKelvinToGains_ClampsInput(t *testing.T) {
	tests := []struct {
		name   string
		kelvin int
		same   int
	}{
		{name: "below minimum clamps to 1000", kelvin: 200, same: MinKelvin},
		{name: "zero clamps to 1000", kelvin: 0, same: MinKelvin},
		{name: "negative clamps to 1000", kelvin: -500, same: MinKelvin},
		{name: "above maximum clamps to 20000", kelvin: 40000, same: MaxKelvin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KelvinToGains(tt.kelvin)
			want := KelvinToGains(tt.same)
			if got != want {
				t.Errorf("Expected gains for %dK to equal gains for %dK, got %+v vs %+v",
					tt.kelvin, tt.same, got, want)
			}
		})
	}
}

// TestKelvinGains_Property1_GainBounds tests output range safety.
//
// Property: For any input, gains lie in [MinGain, MaxGain] and green
// channels are exactly 1.0.
func TestKelvinGains_Property1_GainBounds(t *testing.T) {
	f := func(kelvin int32) bool {
		g := KelvinToGains(int(kelvin))

		if g.R < MinGain || g.R > MaxGain {
			t.Logf("FAIL: R out of bounds (%.3f) with kelvin=%d", g.R, kelvin)
			return false
		}
		if g.B < MinGain || g.B > MaxGain {
			t.Logf("FAIL: B out of bounds (%.3f) with kelvin=%d", g.B, kelvin)
			return false
		}
		if g.Gr != 1.0 || g.Gb != 1.0 {
			t.Logf("FAIL: green not unity (Gr=%.3f Gb=%.3f) with kelvin=%d", g.Gr, g.Gb, kelvin)
			return false
		}

		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestKelvinGains_Property2_WarmCoolSeparation tests direction of the fit.
//
// Property: every warm temperature (at most 5500K) carries a strictly
// higher red gain and a strictly lower blue gain than every cool
// temperature (at least 7500K). The fit's channel clamping makes gains
// non-monotonic in a narrow band around 6600K, so the property compares
// across the separated ranges rather than adjacent values.
func TestKelvinGains_Property2_WarmCoolSeparation(t *testing.T) {
	f := func(a, b uint16) bool {
		warm := 2000 + int(a)%3501
		cool := 7500 + int(b)%2501

		gw := KelvinToGains(warm)
		gc := KelvinToGains(cool)

		if gw.R <= gc.R {
			t.Logf("FAIL: R at %dK (%.6f) not above R at %dK (%.6f)", warm, gw.R, cool, gc.R)
			return false
		}
		if gw.B >= gc.B {
			t.Logf("FAIL: B at %dK (%.6f) not below B at %dK (%.6f)", warm, gw.B, cool, gc.B)
			return false
		}

		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestKelvinGains_Property3_RatioMonotonic tests the red/blue balance.
//
// Property: the red/blue gain ratio strictly decreases as temperature
// rises anywhere in [2000, 10000]. Unlike the individual channels the
// ratio stays monotonic through the clamp handover around 6600K.
func TestKelvinGains_Property3_RatioMonotonic(t *testing.T) {
	f := func(a, b uint16) bool {
		k1 := 2000 + int(a)%8001
		k2 := 2000 + int(b)%8001
		if k1 == k2 {
			return true
		}
		if k1 > k2 {
			k1, k2 = k2, k1
		}

		g1 := KelvinToGains(k1)
		g2 := KelvinToGains(k2)

		r1 := g1.R / g1.B
		r2 := g2.R / g2.B
		if r1 <= r2 {
			t.Logf("FAIL: ratio at %dK (%.6f) not above ratio at %dK (%.6f)", k1, r1, k2, r2)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestClampKelvin verifies the exported clamp helper.
func TestClampKelvin(t *testing.T) {
	tests := []struct {
		name   string
		kelvin int
		want   int
	}{
		{name: "in range passes through", kelvin: 5600, want: 5600},
		{name: "minimum boundary", kelvin: 1000, want: 1000},
		{name: "maximum boundary", kelvin: 20000, want: 20000},
		{name: "below minimum", kelvin: 999, want: 1000},
		{name: "above maximum", kelvin: 20001, want: 20000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampKelvin(tt.kelvin); got != tt.want {
				t.Errorf("ClampKelvin(%d) = %d, want %d", tt.kelvin, got, tt.want)
			}
		})
	}
}

// TestNeutralGains verifies the neutral constructor and predicate agree.
func TestNeutralGains(t *testing.T) {
	if !NeutralGains().Neutral() {
		t.Error("Expected NeutralGains() to report Neutral()")
	}

	warm := KelvinToGains(2700)
	if warm.Neutral() {
		t.Errorf("Expected 2700K gains to be non-neutral, got %+v", warm)
	}
}
