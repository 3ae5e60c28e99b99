package testutil

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextImageScale is the upscaling factor applied to the 7x13 bitmap font so
// glyphs are large enough for recognition.
const TextImageScale = 6

// TextImage renders text in black on a white background. The basic bitmap
// face is drawn at its native size and then scaled up with nearest
// neighbour sampling to keep edges crisp.
func TextImage(text string) *image.NRGBA {
	face := basicfont.Face7x13
	margin := 10
	width := font.MeasureString(face, text).Ceil() + 2*margin
	height := face.Metrics().Height.Ceil() + 2*margin

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: color.Black},
		Face: face,
		Dot:  fixed.P(margin, margin+face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(text)

	return imaging.Resize(img, width*TextImageScale, height*TextImageScale, imaging.NearestNeighbor)
}

// BlankImage returns a uniform white image.
func BlankImage(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.White)
}
