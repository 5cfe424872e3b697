// Package sensor abstracts imaging hardware behind a single driver
// contract with three implementations: a V4L2 driver for local camera
// devices, a GStreamer driver for pipeline-managed sources, and a
// simulated driver for tests and hardware-free deployments.
package sensor

import "context"

// Sensor defines the contract for imaging device drivers
//
// Implementations must guarantee:
//   - Open() acquires the device exclusively; a second Open fails
//   - SupportedSizes() and Capabilities() are valid after Open()
//   - StartStream() returns a channel that closes on StopStream(), or
//     early if delivery dies and cannot be restored
//   - Frames are sent non-blocking; a full channel drops, never queues
//   - Apply() receives complete parameter sets and never merges state
//   - Close() is idempotent and releases the device
//   - Stats() is thread-safe (can be called from any goroutine)
type Sensor interface {
	// Open acquires the device and reads its static metadata.
	//
	// Returns an error if:
	//   - The device node does not exist or cannot be opened
	//   - Access is refused (wrapped ErrPermissionDenied)
	//   - The sensor is already open (ErrAlreadyOpen)
	Open(ctx context.Context) error

	// Close releases the device and all driver resources.
	//
	// This method:
	//  1. Stops the stream if one is running
	//  2. Releases the device handle
	//  3. Closes the AWB results channel if the driver has one
	//
	// Safe to call multiple times (idempotent).
	Close(ctx context.Context) error

	// SupportedSizes lists the frame sizes the device can produce,
	// in no particular order. Valid after Open.
	SupportedSizes() []Size

	// Capabilities describes the control surface of the device.
	// Valid after Open.
	Capabilities() Capabilities

	// Configure sets the streaming format and returns the size the
	// device actually settled on. Must be called between Open and
	// StartStream; reconfiguring while streaming is a driver error.
	Configure(size Size, fps float64) (Size, error)

	// StartStream begins frame delivery and returns a read-only channel.
	//
	// The returned channel remains open until StopStream, closing early
	// only when delivery fails beyond recovery. Frames are sent using a
	// non-blocking pattern; if the channel buffer is full, frames are
	// dropped rather than queued to maintain low latency.
	StartStream(ctx context.Context) (<-chan Frame, error)

	// StopStream halts frame delivery and closes the frame channel.
	// Safe to call when not streaming (returns nil).
	StopStream(ctx context.Context) error

	// Apply writes one complete control set to the hardware.
	//
	// The set replaces all previous control state. Controls the
	// hardware cannot express are skipped and logged at debug level;
	// a failure writing a supported control fails the whole apply.
	Apply(set ControlSet) error

	// CaptureStill grabs one frame at the requested size and returns
	// it encoded as JPEG. Drivers may briefly interrupt the preview
	// stream to reconfigure the device for the still size.
	CaptureStill(ctx context.Context, size Size, quality int) ([]byte, error)

	// Results returns the auto-white-balance measurement channel, or
	// nil when the driver has none (see Capabilities.HasAWBResults).
	// The channel closes on Close.
	Results() <-chan AWBResult

	// Stats returns current driver statistics.
	Stats() Stats
}
