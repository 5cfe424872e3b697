package sensor

import "strings"

// gstErrorCategory classifies GStreamer pipeline errors for telemetry.
type gstErrorCategory int

const (
	// gstErrDevice indicates device failures (node missing, busy, permission)
	gstErrDevice gstErrorCategory = iota
	// gstErrNegotiation indicates caps or format negotiation failures
	gstErrNegotiation
	// gstErrDecode indicates codec and conversion failures
	gstErrDecode
	// gstErrUnknown indicates unclassified errors
	gstErrUnknown
)

// String returns a human-readable string representation of the category.
func (e gstErrorCategory) String() string {
	switch e {
	case gstErrDevice:
		return "device"
	case gstErrNegotiation:
		return "negotiation"
	case gstErrDecode:
		return "decode"
	case gstErrUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// classifyGstError categorizes a pipeline error from its message strings.
//
// This distinguishes failures whose remedy differs in production:
// - Device issues (node unplugged or busy, a rebuild may help)
// - Negotiation issues (caps mismatch, rebuild unlikely to help)
// - Decode issues (conversion or codec problem)
// - Unknown issues (need investigation)
//
// go-gst's GError does not expose Domain(), so classification relies on
// message heuristics. The caller passes gerr.Error() and gerr.DebugString().
func classifyGstError(errMsg, debugStr string) gstErrorCategory {
	combined := strings.ToLower(errMsg) + " " + strings.ToLower(debugStr)

	// Priority 1: device errors (most actionable)
	if containsAny(combined, gstDeviceKeywords) {
		return gstErrDevice
	}

	// Priority 2: negotiation errors
	if containsAny(combined, gstNegotiationKeywords) {
		return gstErrNegotiation
	}

	// Priority 3: decode errors
	if containsAny(combined, gstDecodeKeywords) {
		return gstErrDecode
	}

	return gstErrUnknown
}

var gstDeviceKeywords = []string{
	"device",
	"/dev/video",
	"busy",
	"no such file",
	"permission",
	"could not open",
	"failed to open",
	"ioctl",
	"v4l2",
	"disconnected",
	"removed",
}

var gstNegotiationKeywords = []string{
	"negotiation",
	"not-negotiated",
	"caps",
	"format",
	"resolution",
	"framerate",
	"no common",
}

var gstDecodeKeywords = []string{
	"decode",
	"encode",
	"codec",
	"convert",
	"colorspace",
	"jpeg",
	"mjpeg",
	"h264",
	"missing plugin",
	"no decoder",
}

// containsAny reports whether s contains at least one keyword.
func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
