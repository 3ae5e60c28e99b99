package pdf

import (
	"image"
	"image/color"
)

// blankTolerance is the largest luminance spread (0..255) still considered blank.
const blankTolerance = 8

// IsBlank reports whether img is a single uniform colour, e.g. a page whose
// rasterization produced nothing but background.
func IsBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	if b.Empty() {
		return true
	}

	// Sample on a grid; a full scan of a 2x page is several million pixels.
	step := max(1, min(b.Dx(), b.Dy())/512)
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			l := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			lo, hi = min(lo, l), max(hi, l)
			if hi-lo > blankTolerance {
				return false
			}
		}
	}
	return true
}
