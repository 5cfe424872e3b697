// Package colorscience converts correlated color temperatures into sensor
// white-balance gains and carries the color-correction matrix types shared
// by the session controller and the sensor drivers.
//
// The kelvin conversion uses the Tanner-Helland polynomial fit of the
// blackbody locus. The fit produces 8-bit RGB channel intensities; gains
// are derived as channel ratios with green as the 1.0 reference, which is
// the form sensor ISPs expect for RGGB gain registers.
package colorscience

import "math"

const (
	// MinKelvin and MaxKelvin bound the supported color temperature range.
	// Values outside the range are clamped, not rejected.
	MinKelvin = 1000
	MaxKelvin = 20000

	// MinGain and MaxGain bound each output gain channel.
	MinGain = 0.1
	MaxGain = 4.0

	neutralEpsilon = 1e-6
)

// Gains holds per-channel white balance gains in RGGB order.
// Green channels are always 1.0, the reference the red and blue
// ratios are expressed against.
type Gains struct {
	R  float64
	Gr float64
	Gb float64
	B  float64
}

// Neutral reports whether all four gains are 1.0 within epsilon.
func (g Gains) Neutral() bool {
	return math.Abs(g.R-1.0) < neutralEpsilon &&
		math.Abs(g.Gr-1.0) < neutralEpsilon &&
		math.Abs(g.Gb-1.0) < neutralEpsilon &&
		math.Abs(g.B-1.0) < neutralEpsilon
}

// NeutralGains returns unity gains on every channel.
func NeutralGains() Gains {
	return Gains{R: 1.0, Gr: 1.0, Gb: 1.0, B: 1.0}
}

// ClampKelvin clamps a color temperature to the supported range.
func ClampKelvin(kelvin int) int {
	if kelvin < MinKelvin {
		return MinKelvin
	}
	if kelvin > MaxKelvin {
		return MaxKelvin
	}
	return kelvin
}

// KelvinToGains converts a correlated color temperature to RGGB gains.
//
// This function:
//  1. Clamps kelvin to [MinKelvin, MaxKelvin]
//  2. Evaluates the Tanner-Helland fit to 8-bit RGB channel intensities
//  3. Normalizes red and blue against green and clamps each ratio
//     to [MinGain, MaxGain]
//
// Green is always exactly 1.0. Around 6500K (daylight) the result is
// near-neutral.
func KelvinToGains(kelvin int) Gains {
	t := float64(ClampKelvin(kelvin)) / 100.0

	var red float64
	if t <= 66 {
		red = 255
	} else {
		red = 329.698727446 * math.Pow(t-60, -0.1332047592)
	}

	var green float64
	if t <= 66 {
		green = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		green = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}

	var blue float64
	switch {
	case t >= 66:
		blue = 255
	case t <= 19:
		blue = 0
	default:
		blue = 138.5177312231*math.Log(t-10) - 305.0447927307
	}

	red = clampChannel(red)
	green = clampChannel(green)
	blue = clampChannel(blue)

	return Gains{
		R:  clampGain(red / green),
		Gr: 1.0,
		Gb: 1.0,
		B:  clampGain(blue / green),
	}
}

func clampChannel(v float64) float64 {
	return math.Min(255, math.Max(0, v))
}

func clampGain(v float64) float64 {
	return math.Min(MaxGain, math.Max(MinGain, v))
}
