package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// Decode converts a raw buffer into a packed Go image, honoring the
// buffer's row strides. The returned image owns its pixels; the input
// buffer can be reused or returned to a pool immediately.
//
// YUV formats decode to *image.YCbCr (the native input of the JPEG
// encoder), RGB24 decodes to *image.RGBA, MJPEG is decompressed.
func Decode(b Buffer) (image.Image, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	switch b.Format {
	case FormatI420:
		return decodeI420(b), nil
	case FormatNV12:
		return decodeNV12(b), nil
	case FormatYUYV:
		return decodeYUYV(b), nil
	case FormatRGB24:
		return decodeRGB24(b), nil
	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(b.Data))
		if err != nil {
			return nil, fmt.Errorf("imaging: failed to decode MJPEG frame: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("imaging: unsupported pixel format %s", b.Format)
	}
}

func decodeI420(b Buffer) *image.YCbCr {
	ys, cs := b.strides()
	cw, ch := b.chromaDims()

	img := image.NewYCbCr(image.Rect(0, 0, b.Width, b.Height), image.YCbCrSubsampleRatio420)

	yPlane := b.Data[:ys*b.Height]
	cbPlane := b.Data[ys*b.Height : ys*b.Height+cs*ch]
	crPlane := b.Data[ys*b.Height+cs*ch:]

	for row := 0; row < b.Height; row++ {
		copy(img.Y[row*img.YStride:row*img.YStride+b.Width], yPlane[row*ys:row*ys+b.Width])
	}
	for row := 0; row < ch; row++ {
		copy(img.Cb[row*img.CStride:row*img.CStride+cw], cbPlane[row*cs:row*cs+cw])
		copy(img.Cr[row*img.CStride:row*img.CStride+cw], crPlane[row*cs:row*cs+cw])
	}

	return img
}

func decodeNV12(b Buffer) *image.YCbCr {
	ys, cs := b.strides()
	cw, ch := b.chromaDims()

	img := image.NewYCbCr(image.Rect(0, 0, b.Width, b.Height), image.YCbCrSubsampleRatio420)

	yPlane := b.Data[:ys*b.Height]
	cPlane := b.Data[ys*b.Height:]

	for row := 0; row < b.Height; row++ {
		copy(img.Y[row*img.YStride:row*img.YStride+b.Width], yPlane[row*ys:row*ys+b.Width])
	}
	for row := 0; row < ch; row++ {
		src := cPlane[row*cs:]
		dst := row * img.CStride
		for col := 0; col < cw; col++ {
			img.Cb[dst+col] = src[2*col]
			img.Cr[dst+col] = src[2*col+1]
		}
	}

	return img
}

func decodeYUYV(b Buffer) *image.YCbCr {
	ys, _ := b.strides()
	cw, _ := b.chromaDims()

	img := image.NewYCbCr(image.Rect(0, 0, b.Width, b.Height), image.YCbCrSubsampleRatio422)

	for row := 0; row < b.Height; row++ {
		src := b.Data[row*ys:]
		yDst := row * img.YStride
		cDst := row * img.CStride
		for col := 0; col < b.Width; col++ {
			group := (col &^ 1) * 2
			img.Y[yDst+col] = src[group+(col&1)*2]
			if col&1 == 0 && col/2 < cw {
				img.Cb[cDst+col/2] = src[group+1]
				img.Cr[cDst+col/2] = src[group+3]
			}
		}
	}

	return img
}

func decodeRGB24(b Buffer) *image.RGBA {
	ys, _ := b.strides()

	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))

	for row := 0; row < b.Height; row++ {
		src := b.Data[row*ys:]
		dst := img.Pix[row*img.Stride:]
		for col := 0; col < b.Width; col++ {
			dst[4*col+0] = src[3*col+0]
			dst[4*col+1] = src[3*col+1]
			dst[4*col+2] = src[3*col+2]
			dst[4*col+3] = 0xFF
		}
	}

	return img
}
