package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // register decoders for extracted images
	_ "image/png"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	_ "golang.org/x/image/tiff" // CCITT images are extracted as TIFF
)

// MaxRasterSide bounds the width and height of a rendered page in pixels.
const MaxRasterSide = 12000

// Backend names. DefaultRasterizer paints the full page and registers
// itself from package mupdf; FallbackRasterizer is always available.
const (
	DefaultRasterizer  = "mupdf"
	FallbackRasterizer = "compose"
)

// Rasterizer renders a page of an opened document to a bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc *Document, pageNumber int, scale float64) (image.Image, error)
}

var (
	rasterizersMu sync.RWMutex
	rasterizers   = map[string]func() (Rasterizer, error){
		FallbackRasterizer: func() (Rasterizer, error) { return ComposeRasterizer{}, nil },
	}
)

// RegisterRasterizer makes a rasterization backend available by name.
// Backends living in their own packages register from init.
func RegisterRasterizer(name string, factory func() (Rasterizer, error)) {
	rasterizersMu.Lock()
	defer rasterizersMu.Unlock()
	rasterizers[strings.ToLower(name)] = factory
}

// NewRasterizer returns the backend registered under name. An empty name
// selects DefaultRasterizer when it is linked and FallbackRasterizer
// otherwise.
func NewRasterizer(name string) (Rasterizer, error) {
	if name == "" {
		name = defaultRasterizerName()
	}
	rasterizersMu.RLock()
	factory, ok := rasterizers[strings.ToLower(name)]
	rasterizersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown render backend %q (available: %s)", name, strings.Join(Rasterizers(), ", "))
	}
	return factory()
}

func defaultRasterizerName() string {
	rasterizersMu.RLock()
	defer rasterizersMu.RUnlock()
	if _, ok := rasterizers[DefaultRasterizer]; ok {
		return DefaultRasterizer
	}
	return FallbackRasterizer
}

// Rasterizers lists the registered backend names.
func Rasterizers() []string {
	rasterizersMu.RLock()
	defer rasterizersMu.RUnlock()
	names := make([]string, 0, len(rasterizers))
	for n := range rasterizers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ComposeRasterizer renders a page by placing its image XObjects on a white
// canvas at the positions given by the content stream. Vector graphics and
// text are not painted, so pages drawn only with paths come out blank; it
// is the fallback for builds without the mupdf backend.
type ComposeRasterizer struct{}

// placement is where an image XObject lands in page space.
type placement struct {
	name string
	ctm  matrix
}

// Rasterize implements Rasterizer.
func (ComposeRasterizer) Rasterize(ctx context.Context, doc *Document, pageNumber int, scale float64) (image.Image, error) {
	box := defaultMediaBox
	var (
		places  []placement
		scanErr error
	)
	ok := doc.withPage(pageNumber, func(p pdf.Page) {
		box = mediaBox(p.V)
		places, scanErr = scanPlacements(p)
	})
	if !ok {
		doc.logger.Debug("no content parser for page, images fill the page", "page", pageNumber)
	}
	if scanErr != nil {
		return nil, &PageRenderError{Page: pageNumber, Err: scanErr}
	}

	w := int(math.Ceil(box.width() * scale))
	h := int(math.Ceil(box.height() * scale))
	if w <= 0 || h <= 0 || w > MaxRasterSide || h > MaxRasterSide {
		return nil, renderError(pageNumber, "raster size %dx%d out of bounds", w, h)
	}

	images, err := pageImages(doc.Bytes(), pageNumber)
	if err != nil {
		return nil, &PageRenderError{Page: pageNumber, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := imaging.New(w, h, color.White)
	for _, pl := range resolvePlacements(places, images, box) {
		img := images[pl.name]
		dst := pl.ctm.bounds(box, scale)
		if dst.Dx() <= 0 || dst.Dy() <= 0 {
			continue
		}
		fitted := imaging.Resize(img, dst.Dx(), dst.Dy(), imaging.Lanczos)
		if pl.ctm.a < 0 {
			fitted = imaging.FlipH(fitted)
		}
		if pl.ctm.d < 0 {
			fitted = imaging.FlipV(fitted)
		}
		draw.Draw(canvas, dst, fitted, image.Point{}, draw.Over)
	}
	return canvas, nil
}

// resolvePlacements pairs drawn names with decoded images. Images the
// content stream never placed fill the whole page.
func resolvePlacements(places []placement, images map[string]image.Image, box rect) []placement {
	var out []placement
	used := make(map[string]bool)
	for _, pl := range places {
		if _, ok := images[pl.name]; ok {
			out = append(out, pl)
			used[pl.name] = true
		}
	}
	full := matrix{a: box.width(), d: box.height(), e: box.llx, f: box.lly}
	names := make([]string, 0, len(images))
	for name := range images {
		if !used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, placement{name: name, ctm: full})
	}
	return out
}

// pageImages decodes the page's images keyed by resource name.
func pageImages(data []byte, pageNumber int) (map[string]image.Image, error) {
	conf := newConfiguration(Credentials{})
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), []string{strconv.Itoa(pageNumber)}, conf)
	if err != nil {
		return nil, fmt.Errorf("extract images: %w", err)
	}

	out := make(map[string]image.Image)
	var decodeErrs []error
	for _, byObj := range pages {
		for objNr, raw := range byObj {
			if raw.Reader == nil {
				continue
			}
			img, _, err := image.Decode(raw)
			if err != nil {
				decodeErrs = append(decodeErrs, fmt.Errorf("image %s (obj %d, %s): %w", raw.Name, objNr, raw.FileType, err))
				continue
			}
			name := raw.Name
			if name == "" {
				name = "obj" + strconv.Itoa(objNr)
			}
			out[name] = img
		}
	}
	if len(out) == 0 && len(decodeErrs) > 0 {
		return nil, errors.Join(decodeErrs...)
	}
	return out, nil
}

// scanPlacements walks the content stream tracking the transformation
// matrix and records every Do operator.
func scanPlacements(p pdf.Page) (places []placement, err error) {
	defer func() {
		if r := recover(); r != nil {
			places, err = nil, fmt.Errorf("content stream: %v", r)
		}
	}()

	contents := p.V.Key("Contents")
	streams := []pdf.Value{contents}
	if contents.Kind() == pdf.Array {
		streams = streams[:0]
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	}

	ctm := identity
	var saved []matrix
	for _, strm := range streams {
		if strm.Kind() != pdf.Stream {
			continue
		}
		pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
			args := make([]pdf.Value, stk.Len())
			for i := len(args) - 1; i >= 0; i-- {
				args[i] = stk.Pop()
			}
			switch op {
			case "q":
				saved = append(saved, ctm)
			case "Q":
				if n := len(saved); n > 0 {
					ctm = saved[n-1]
					saved = saved[:n-1]
				}
			case "cm":
				if len(args) != 6 {
					return
				}
				m := matrix{args[0].Float64(), args[1].Float64(), args[2].Float64(), args[3].Float64(), args[4].Float64(), args[5].Float64()}
				ctm = m.mul(ctm)
			case "Do":
				if len(args) != 1 {
					return
				}
				places = append(places, placement{name: args[0].Name(), ctm: ctm})
			}
		})
	}
	return places, nil
}

// matrix is a PDF transformation matrix [a b c d e f].
type matrix struct {
	a, b, c, d, e, f float64
}

var identity = matrix{a: 1, d: 1}

// mul returns m × n (m applied first).
func (m matrix) mul(n matrix) matrix {
	return matrix{
		a: m.a*n.a + m.b*n.c,
		b: m.a*n.b + m.b*n.d,
		c: m.c*n.a + m.d*n.c,
		d: m.c*n.b + m.d*n.d,
		e: m.e*n.a + m.f*n.c + n.e,
		f: m.e*n.b + m.f*n.d + n.f,
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

// bounds maps the unit square through m into pixel space of a page with
// the given media box rendered at scale. Y grows downwards in pixels.
func (m matrix) bounds(box rect, scale float64) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		x, y := m.apply(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return image.Rect(
		int(math.Round((minX-box.llx)*scale)),
		int(math.Round((box.ury-maxY)*scale)),
		int(math.Round((maxX-box.llx)*scale)),
		int(math.Round((box.ury-minY)*scale)),
	)
}

type rect struct {
	llx, lly, urx, ury float64
}

func (r rect) width() float64  { return r.urx - r.llx }
func (r rect) height() float64 { return r.ury - r.lly }

// US Letter, used when a page has no usable MediaBox.
var defaultMediaBox = rect{0, 0, 612, 792}

// mediaBox returns the page's MediaBox, inherited through the page tree.
func mediaBox(page pdf.Value) rect {
	for v, depth := page, 0; !v.IsNull() && depth < 32; v, depth = v.Key("Parent"), depth+1 {
		mb := v.Key("MediaBox")
		if mb.Kind() != pdf.Array || mb.Len() != 4 {
			continue
		}
		r := rect{mb.Index(0).Float64(), mb.Index(1).Float64(), mb.Index(2).Float64(), mb.Index(3).Float64()}
		if r.llx > r.urx {
			r.llx, r.urx = r.urx, r.llx
		}
		if r.lly > r.ury {
			r.lly, r.ury = r.ury, r.lly
		}
		if r.width() > 0 && r.height() > 0 {
			return r
		}
	}
	return defaultMediaBox
}

