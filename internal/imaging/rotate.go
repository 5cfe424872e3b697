package imaging

import (
	"fmt"
	"image"
	"image/draw"
)

// Rotate returns the image rotated clockwise by the given degrees.
// Degrees must be 0, 90, 180, or 270. Zero returns the input unchanged;
// 90 and 270 swap the output dimensions.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	switch degrees {
	case 0:
		return img, nil
	case 90, 180, 270:
	default:
		return nil, fmt.Errorf("imaging: unsupported rotation %d degrees", degrees)
	}

	src := ToRGBA(img)
	w := src.Rect.Dx()
	h := src.Rect.Dy()

	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		srcRow := y * src.Stride
		for x := 0; x < w; x++ {
			var dx, dy int
			switch degrees {
			case 90:
				dx, dy = h-1-y, x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = y, w-1-x
			}

			srcOff := srcRow + x*4
			dstOff := dy*dst.Stride + dx*4
			copy(dst.Pix[dstOff:dstOff+4], src.Pix[srcOff:srcOff+4])
		}
	}

	return dst, nil
}

// ToRGBA converts any image to a zero-origin *image.RGBA. Images that
// already satisfy that are returned as-is without copying.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
