package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// EncodeJPEG encodes the image at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("imaging: jpeg quality must be 1-100, got %d", quality)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: failed to encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// Scale resamples the image to exactly width x height.
func Scale(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// CatmullRom for high-quality downscaling (similar to Lanczos)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// FitWithin computes the largest dimensions that fit inside maxW x maxH
// while preserving the source aspect ratio. Sources already within the
// box keep their dimensions.
func FitWithin(src image.Image, maxW, maxH int) (width, height int) {
	b := src.Bounds()
	w := b.Dx()
	h := b.Dy()

	if w <= maxW && h <= maxH {
		return w, h
	}

	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	width = int(float64(w) * scale)
	height = int(float64(h) * scale)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	return width, height
}
