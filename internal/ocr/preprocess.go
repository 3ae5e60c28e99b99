package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Bitmaps narrower than this are upscaled before recognition.
const minRecognitionWidth = 1000

// ImageConstraints bound the bitmap handed to the engine.
type ImageConstraints struct {
	MaxWidth  int
	MaxHeight int
	MinWidth  int
}

// DefaultImageConstraints keeps bitmaps well below Tesseract's 32767 pixel
// limit and upscales slide thumbnails.
func DefaultImageConstraints() ImageConstraints {
	return ImageConstraints{
		MaxWidth:  8000,
		MaxHeight: 8000,
		MinWidth:  minRecognitionWidth,
	}
}

// FitImage scales img, preserving its aspect ratio, so that it lies within
// the maximum dimensions of c. Images narrower than c.MinWidth are upscaled
// unless that would exceed c.MaxHeight.
func FitImage(img image.Image, c ImageConstraints) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return img
	}

	scale := 1.0
	switch {
	case w > c.MaxWidth || h > c.MaxHeight:
		scale = math.Min(float64(c.MaxWidth)/float64(w), float64(c.MaxHeight)/float64(h))
	case w < c.MinWidth:
		scale = math.Min(float64(c.MinWidth)/float64(w), float64(c.MaxHeight)/float64(h))
	}
	if scale == 1.0 {
		return img
	}

	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	filter := imaging.CatmullRom
	if scale < 1 {
		filter = imaging.Lanczos
	}
	return imaging.Resize(img, nw, nh, filter)
}

// Preprocess converts img to high contrast grayscale and fits it into
// DefaultImageConstraints, which improves recognition of slide screenshots.
func Preprocess(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	return FitImage(out, DefaultImageConstraints())
}
