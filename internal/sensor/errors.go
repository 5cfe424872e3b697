package sensor

import "errors"

var (
	// ErrNotOpen is returned when an operation requires an acquired device.
	ErrNotOpen = errors.New("sensor is not open")

	// ErrAlreadyOpen is returned when Open is called on an open sensor.
	ErrAlreadyOpen = errors.New("sensor is already open")

	// ErrNotStreaming is returned when a stream operation requires an
	// active stream.
	ErrNotStreaming = errors.New("sensor is not streaming")

	// ErrPermissionDenied is returned when the device node exists but
	// access is refused.
	ErrPermissionDenied = errors.New("sensor permission denied")

	// ErrControlsUnsupported is returned by drivers that cannot apply
	// control sets while a stream is running.
	ErrControlsUnsupported = errors.New("driver cannot apply controls while streaming")

	// ErrNoResolution is returned when negotiation finds no usable size.
	ErrNoResolution = errors.New("no supported resolution satisfies the request")
)
