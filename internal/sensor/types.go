package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/care/iris/internal/colorscience"
	"github.com/care/iris/internal/imaging"
)

// Size is a frame geometry in pixels.
type Size struct {
	Width  int
	Height int
}

// String returns the conventional WxH form (e.g. "1920x1080").
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Area returns the pixel count.
func (s Size) Area() int {
	return s.Width * s.Height
}

// IsZero reports whether the size is unset.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// aspect returns width/height as a float, zero-safe.
func (s Size) aspect() float64 {
	if s.Height == 0 {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

// Frame is one raw frame delivered by a driver.
type Frame struct {
	// Seq is the monotonic sequence number within the stream
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Format is the buffer memory layout
	Format imaging.PixelFormat
	// YStride is the byte stride of the luma or packed plane (0 = tight)
	YStride int
	// CStride is the byte stride of the chroma planes (0 = tight)
	CStride int
	// Data contains the raw frame bytes in Format layout
	Data []byte
	// Rotation is the clockwise rotation in degrees the consumer must
	// apply for upright display (0, 90, 180, 270)
	Rotation int
	// Generation is the session generation the frame was captured under
	Generation uint64
	// TraceID is a unique identifier for distributed tracing
	TraceID string

	release *releaseHook
}

// releaseHook guards a pooled buffer's return so copies of a Frame can
// all call Release safely.
type releaseHook struct {
	once sync.Once
	fn   func()
}

// WithRelease attaches a hook that returns the frame's backing buffer
// to its owner. The hook runs at most once across all copies of the frame.
func (f Frame) WithRelease(fn func()) Frame {
	f.release = &releaseHook{fn: fn}
	return f
}

// Release returns the frame's backing buffer to its owner. Safe to call
// multiple times and on frames without a hook.
func (f Frame) Release() {
	if f.release != nil && f.release.fn != nil {
		f.release.once.Do(f.release.fn)
	}
}

// Buffer adapts the frame to the imaging package's input form.
func (f Frame) Buffer() imaging.Buffer {
	return imaging.Buffer{
		Format:  f.Format,
		Width:   f.Width,
		Height:  f.Height,
		YStride: f.YStride,
		CStride: f.CStride,
		Data:    f.Data,
	}
}

// White balance preset identifiers shared by drivers that support them.
const (
	WBPresetAuto            = "auto"
	WBPresetIncandescent    = "incandescent"
	WBPresetFluorescent     = "fluorescent"
	WBPresetWarmFluorescent = "warm-fluorescent"
	WBPresetDaylight        = "daylight"
	WBPresetCloudyDaylight  = "cloudy-daylight"
	WBPresetTwilight        = "twilight"
	WBPresetShade           = "shade"
)

// CCMSource identifies where a color correction matrix came from.
type CCMSource string

const (
	// CCMLive is a matrix captured from a recent auto-WB result.
	CCMLive CCMSource = "live"
	// CCMStatic is the sensor's factory calibration matrix.
	CCMStatic CCMSource = "static"
	// CCMIdentity is the no-op fallback when nothing better exists.
	CCMIdentity CCMSource = "identity"
)

// ControlSet is one complete capture parameter set.
//
// Every Apply carries every field; drivers never merge a set with prior
// state. Fields whose mode flag disables them still hold defined values
// so a set can be logged and diffed as a unit.
type ControlSet struct {
	// Generation is the session generation the set was composed under.
	Generation uint64

	// WhiteBalanceAuto selects preset-driven WB; false means manual gains.
	WhiteBalanceAuto   bool
	WhiteBalancePreset string
	Gains              colorscience.Gains
	CCM                colorscience.Matrix3
	CCMSource          CCMSource

	// ExposureAuto selects auto exposure; false means the manual pair below.
	ExposureAuto   bool
	ExposureTimeNs int64
	ISO            int

	// FocusAuto selects continuous autofocus; false holds FocusPosition.
	FocusAuto bool
	// FocusPosition is the normalized manual focus position in [0, 1].
	FocusPosition float64
}

// Capabilities describes what a driver can express in hardware.
type Capabilities struct {
	// Presets lists the supported white balance preset identifiers.
	Presets []string
	// ExposureMinNs and ExposureMaxNs bound manual exposure time.
	ExposureMinNs int64
	ExposureMaxNs int64
	// ISOMin and ISOMax bound manual sensitivity.
	ISOMin int
	ISOMax int
	// HasColorTransform is true when the hardware applies a CCM.
	HasColorTransform bool
	// HasAWBResults is true when the driver emits AWBResult measurements.
	HasAWBResults bool
	// HasManualFocus is true when FocusPosition is honored.
	HasManualFocus bool
	// StaticCCM is the factory calibration matrix, zero when absent.
	StaticCCM colorscience.Matrix3
}

// SupportsPreset reports whether the preset id is in the capability list.
func (c Capabilities) SupportsPreset(preset string) bool {
	for _, p := range c.Presets {
		if p == preset {
			return true
		}
	}
	return false
}

// AWBResult is one auto-white-balance measurement from the driver.
type AWBResult struct {
	Gains      colorscience.Gains
	CCM        colorscience.Matrix3
	Generation uint64
	At         time.Time
}

// Stats contains current driver statistics.
type Stats struct {
	// FrameCount is the total number of frames delivered
	FrameCount uint64
	// FramesDropped is the total number of frames dropped (channel full)
	FramesDropped uint64
	// DropRate is the percentage of frames dropped (0-100)
	DropRate float64
	// FPSTarget is the configured target FPS
	FPSTarget float64
	// Resolution is the configured stream resolution (e.g. "1920x1080")
	Resolution string
	// BytesRead is the total frame bytes delivered
	BytesRead uint64
	// IsStreaming indicates whether the stream loop is running
	IsStreaming bool
	// ControlsApplied counts successful Apply calls
	ControlsApplied uint64
	// ControlsRejected counts failed Apply calls
	ControlsRejected uint64
	// StillsCaptured counts successful CaptureStill calls
	StillsCaptured uint64
}
