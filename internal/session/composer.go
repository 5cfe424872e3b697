package session

import (
	"github.com/care/iris/internal/colorscience"
	"github.com/care/iris/internal/sensor"
)

// desiredState is the full requested capture parameter state. Mutators
// update it; the composer turns it into complete driver control sets, so
// the driver never sees a partial delta.
type desiredState struct {
	wbAuto bool
	preset string
	kelvin int
	gains  colorscience.Gains

	exposureNs int64
	iso        int

	focusAuto     bool
	focusPosition float64
}

// defaultDesired is the state a fresh session starts from: everything
// automatic.
func defaultDesired() desiredState {
	return desiredState{
		wbAuto:    true,
		preset:    sensor.WBPresetAuto,
		gains:     colorscience.NeutralGains(),
		focusAuto: true,
	}
}

// composeControls builds one complete control set from the desired state,
// the driver capabilities, and the resolved white balance. It is pure:
// the same inputs always produce the same set, and every field is
// populated on every call regardless of what last changed.
//
// Exposure is manual only when the full pair is present; a partial pair
// falls back to auto. Manual values are clamped into the advertised
// device ranges.
func composeControls(d desiredState, caps sensor.Capabilities, wb wbResolution) sensor.ControlSet {
	set := sensor.ControlSet{
		WhiteBalanceAuto:   wb.auto,
		WhiteBalancePreset: wb.preset,
		Gains:              wb.gains,
		CCM:                wb.ccm,
		CCMSource:          wb.source,
	}

	if d.exposureNs > 0 && d.iso > 0 {
		set.ExposureAuto = false
		set.ExposureTimeNs = clampInt64(d.exposureNs, caps.ExposureMinNs, caps.ExposureMaxNs)
		set.ISO = clampInt(d.iso, caps.ISOMin, caps.ISOMax)
	} else {
		set.ExposureAuto = true
	}

	set.FocusAuto = d.focusAuto
	if !d.focusAuto {
		set.FocusPosition = d.focusPosition
	}

	return set
}

// clampInt64 bounds v to [min, max]. A zero max means the device did not
// advertise a range and v passes through.
func clampInt64(v, min, max int64) int64 {
	if max > 0 && v > max {
		return max
	}
	if min > 0 && v < min {
		return min
	}
	return v
}

func clampInt(v, min, max int) int {
	if max > 0 && v > max {
		return max
	}
	if min > 0 && v < min {
		return min
	}
	return v
}
