// Package mupdf registers the MuPDF backed rasterizer under the name
// "mupdf". It paints everything on the page and is the default backend of
// deckscan once linked.
package mupdf

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

// Name is the backend name used in configuration.
const Name = pdf.DefaultRasterizer

func init() {
	pdf.RegisterRasterizer(Name, func() (pdf.Rasterizer, error) { return Rasterizer{}, nil })
}

// Rasterizer renders pages with MuPDF at 72*scale DPI, painting vector text
// and graphics as well as images.
type Rasterizer struct{}

// Rasterize implements pdf.Rasterizer.
func (Rasterizer) Rasterize(ctx context.Context, doc *pdf.Document, pageNumber int, scale float64) (image.Image, error) {
	fd, err := fitz.NewFromMemory(doc.Bytes())
	if err != nil {
		return nil, fmt.Errorf("mupdf open: %w", err)
	}
	defer func() { _ = fd.Close() }()

	if pageNumber > fd.NumPage() {
		return nil, &pdf.PageRenderError{Page: pageNumber, Err: fmt.Errorf("mupdf sees %d pages", fd.NumPage())}
	}
	bound, err := fd.Bound(pageNumber - 1)
	if err != nil {
		return nil, fmt.Errorf("mupdf bounds: %w", err)
	}
	if w, h := float64(bound.Dx())*scale, float64(bound.Dy())*scale; w > pdf.MaxRasterSide || h > pdf.MaxRasterSide {
		return nil, &pdf.PageRenderError{Page: pageNumber, Err: fmt.Errorf("raster size %.0fx%.0f out of bounds", w, h)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := fd.ImageDPI(pageNumber-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("mupdf render: %w", err)
	}
	return img, nil
}
