// Package imaging converts raw sensor buffers into packed Go images and
// encoded stills. Stride handling, rotation, scaling, and JPEG encoding
// all live here; sensor drivers and the analysis pipeline build on the
// same primitives.
package imaging

import (
	"errors"
	"fmt"
)

// PixelFormat identifies the memory layout of a raw frame buffer.
type PixelFormat int

const (
	// FormatI420 is planar YUV 4:2:0 (Y plane, Cb plane, Cr plane).
	FormatI420 PixelFormat = iota
	// FormatNV12 is semi-planar YUV 4:2:0 (Y plane, interleaved CbCr plane).
	FormatNV12
	// FormatYUYV is packed YUV 4:2:2 (Y0 Cb Y1 Cr per pixel pair).
	FormatYUYV
	// FormatRGB24 is packed 8-bit RGB.
	FormatRGB24
	// FormatMJPEG is a JPEG compressed frame.
	FormatMJPEG
)

// String returns a human-readable name for the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case FormatI420:
		return "I420"
	case FormatNV12:
		return "NV12"
	case FormatYUYV:
		return "YUYV"
	case FormatRGB24:
		return "RGB24"
	case FormatMJPEG:
		return "MJPEG"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ErrShortBuffer is returned when a buffer's data is smaller than its
// declared geometry requires.
var ErrShortBuffer = errors.New("buffer data shorter than geometry requires")

// Buffer describes one raw frame as delivered by a sensor driver.
//
// Strides are in bytes. A zero stride means tightly packed for the
// format. Sensor hardware commonly pads rows to alignment boundaries,
// so consumers must never assume YStride == Width.
type Buffer struct {
	Format PixelFormat
	Width  int
	Height int

	// YStride is the byte stride of the luma plane, or of the packed
	// pixel rows for packed formats.
	YStride int

	// CStride is the byte stride of each chroma plane (planar formats)
	// or of the interleaved chroma plane (semi-planar formats).
	CStride int

	Data []byte
}

// chromaDims returns the subsampled chroma plane dimensions.
func (b Buffer) chromaDims() (cw, ch int) {
	switch b.Format {
	case FormatI420, FormatNV12:
		return (b.Width + 1) / 2, (b.Height + 1) / 2
	case FormatYUYV:
		return (b.Width + 1) / 2, b.Height
	default:
		return 0, 0
	}
}

// strides returns the effective strides with tight-packing defaults applied.
func (b Buffer) strides() (ys, cs int) {
	cw, _ := b.chromaDims()

	ys = b.YStride
	cs = b.CStride

	switch b.Format {
	case FormatI420:
		if ys == 0 {
			ys = b.Width
		}
		if cs == 0 {
			cs = cw
		}
	case FormatNV12:
		if ys == 0 {
			ys = b.Width
		}
		if cs == 0 {
			cs = 2 * cw
		}
	case FormatYUYV:
		if ys == 0 {
			ys = 2 * b.Width
		}
	case FormatRGB24:
		if ys == 0 {
			ys = 3 * b.Width
		}
	}

	return ys, cs
}

// validate checks the buffer geometry against the data length.
func (b Buffer) validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("imaging: invalid dimensions %dx%d", b.Width, b.Height)
	}
	if b.Format == FormatMJPEG {
		if len(b.Data) == 0 {
			return fmt.Errorf("imaging: %w: empty MJPEG buffer", ErrShortBuffer)
		}
		return nil
	}

	ys, cs := b.strides()
	cw, ch := b.chromaDims()

	var minY, minC, need int
	switch b.Format {
	case FormatI420:
		minY, minC = b.Width, cw
		need = ys*b.Height + 2*cs*ch
	case FormatNV12:
		minY, minC = b.Width, 2*cw
		need = ys*b.Height + cs*ch
	case FormatYUYV:
		minY = 2 * b.Width
		need = ys * b.Height
	case FormatRGB24:
		minY = 3 * b.Width
		need = ys * b.Height
	default:
		return fmt.Errorf("imaging: unsupported pixel format %s", b.Format)
	}

	if ys < minY || cs < minC {
		return fmt.Errorf("imaging: stride below packed row size for %s %dx%d: y=%d c=%d",
			b.Format, b.Width, b.Height, ys, cs)
	}

	if len(b.Data) < need {
		return fmt.Errorf("imaging: %w: format %s %dx%d needs %d bytes, have %d",
			ErrShortBuffer, b.Format, b.Width, b.Height, need, len(b.Data))
	}

	return nil
}
