package testutil

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"
)

// Page dimensions of generated documents (US Letter, points).
const (
	PageWidth  = 612
	PageHeight = 792
)

type pageSpec struct {
	lines  []string
	img    image.Image
	vector string
}

// PDFBuilder assembles small synthetic PDFs for tests. Text pages use the
// standard Helvetica font; image pages embed a Flate-compressed grayscale
// XObject and carry no text layer.
type PDFBuilder struct {
	pages []pageSpec
}

// NewPDFBuilder returns an empty builder.
func NewPDFBuilder() *PDFBuilder {
	return &PDFBuilder{}
}

// AddTextPage adds a page showing each line with its own text object.
func (b *PDFBuilder) AddTextPage(lines ...string) *PDFBuilder {
	b.pages = append(b.pages, pageSpec{lines: lines})
	return b
}

// AddImagePage adds a page whose only content is img.
func (b *PDFBuilder) AddImagePage(img image.Image) *PDFBuilder {
	b.pages = append(b.pages, pageSpec{img: img})
	return b
}

// AddVectorPage adds a page whose content stream is the given path
// operators. Such a page has neither text operators nor images.
func (b *PDFBuilder) AddVectorPage(ops string) *PDFBuilder {
	b.pages = append(b.pages, pageSpec{vector: ops})
	return b
}

// AddBlankPage adds a page with an empty content stream.
func (b *PDFBuilder) AddBlankPage() *PDFBuilder {
	b.pages = append(b.pages, pageSpec{})
	return b
}

// Bytes serializes the document with a valid cross reference table.
func (b *PDFBuilder) Bytes() []byte {
	w := &pdfWriter{}
	w.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// 1: catalog, 2: page tree, 3: font. Pages follow.
	const fontObj = 3
	next := 4
	type pageObjs struct{ page, content, image int }
	objs := make([]pageObjs, len(b.pages))
	kids := make([]string, len(b.pages))
	for i, p := range b.pages {
		objs[i].page = next
		objs[i].content = next + 1
		next += 2
		if p.img != nil {
			objs[i].image = next
			next++
		}
		kids[i] = fmt.Sprintf("%d 0 R", objs[i].page)
	}

	w.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	w.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 %d %d] >>",
		strings.Join(kids, " "), len(b.pages), PageWidth, PageHeight))
	w.object(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, p := range b.pages {
		o := objs[i]
		resources := fmt.Sprintf("/Font << /F1 %d 0 R >>", fontObj)
		var content string
		switch {
		case p.img != nil:
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", o.image)
			content = imageContent(p.img)
		case p.vector != "":
			content = p.vector
		default:
			content = textContent(p.lines)
		}
		w.object(o.page, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << %s >> /Contents %d 0 R >>",
			resources, o.content))
		w.stream(o.content, "", []byte(content))
		if p.img != nil {
			data, width, height := grayFlate(p.img)
			w.stream(o.image, fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d "+
				"/ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode", width, height), data)
		}
	}

	return w.finish(next)
}

// WriteFile writes the document into dir and returns its path.
func (b *PDFBuilder) WriteFile(t *testing.T, dir, name string) string {
	t.Helper()
	return WriteFile(t, dir, name, b.Bytes())
}

func textContent(lines []string) string {
	var sb strings.Builder
	y := 700
	for _, line := range lines {
		fmt.Fprintf(&sb, "BT /F1 24 Tf 72 %d Td (%s) Tj ET\n", y, escapeString(line))
		y -= 40
	}
	return sb.String()
}

// imageContent places the image centred at most 500pt wide, keeping its aspect ratio.
func imageContent(img image.Image) string {
	bounds := img.Bounds()
	w := 500.0
	h := w * float64(bounds.Dy()) / float64(bounds.Dx())
	if h > 700 {
		h = 700
		w = h * float64(bounds.Dx()) / float64(bounds.Dy())
	}
	x := (PageWidth - w) / 2
	y := (PageHeight - h) / 2
	return fmt.Sprintf("q %.2f 0 0 %.2f %.2f %.2f cm /Im1 Do Q\n", w, h, x, y)
}

func grayFlate(img image.Image) ([]byte, int, int) {
	bounds := img.Bounds()
	raw := make([]byte, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			raw = append(raw, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	_, _ = zw.Write(raw)
	_ = zw.Close()
	return out.Bytes(), bounds.Dx(), bounds.Dy()
}

func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

type pdfWriter struct {
	buf     bytes.Buffer
	offsets map[int]int
}

func (w *pdfWriter) object(num int, body string) {
	w.mark(num)
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (w *pdfWriter) stream(num int, dict string, data []byte) {
	w.mark(num)
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(data))
	w.buf.Write(data)
	w.buf.WriteString("\nendstream\nendobj\n")
}

func (w *pdfWriter) mark(num int) {
	if w.offsets == nil {
		w.offsets = make(map[int]int)
	}
	w.offsets[num] = w.buf.Len()
}

func (w *pdfWriter) finish(size int) []byte {
	xref := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for i := 1; i < size; i++ {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", w.offsets[i])
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return w.buf.Bytes()
}

// HelloWorldPDF is a single page document with the embedded text "Hello World".
func HelloWorldPDF() []byte {
	return NewPDFBuilder().AddTextPage("Hello World").Bytes()
}

// ScannedPDF is a single page document containing only a raster image of text.
func ScannedPDF(text string) []byte {
	return NewPDFBuilder().AddImagePage(TextImage(text)).Bytes()
}

// OutlinedPDF is a single page document drawn only with filled paths: a
// bar and the block letters "HI", as exported slides with outlined fonts
// look. It has no text operators and no images.
func OutlinedPDF() []byte {
	return NewPDFBuilder().AddVectorPage(outlinedContent).Bytes()
}

const outlinedContent = `0.1 0.2 0.6 rg
100 600 400 60 re f
0 0 0 rg
150 300 30 200 re f
250 300 30 200 re f
180 385 70 30 re f
330 300 30 200 re f
`

// MixedPDF builds a five page document: pages 1, 3 and 5 carry native text,
// pages 2 and 4 are raster images.
func MixedPDF() []byte {
	return NewPDFBuilder().
		AddTextPage("Problem", "Customers lose hours every week").
		AddImagePage(TextImage("TRACTION")).
		AddTextPage("Solution").
		AddImagePage(TextImage("INVOICE")).
		AddTextPage("Team").
		Bytes()
}

// EncryptPDF password-protects data with pdfcpu.
func EncryptPDF(t *testing.T, data []byte, userPW, ownerPW string) []byte {
	t.Helper()
	out, err := Encrypt(data, userPW, ownerPW)
	require.NoError(t, err)
	return out
}

// Encrypt protects data with the given user and owner passwords.
func Encrypt(data []byte, userPW, ownerPW string) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = userPW
	conf.OwnerPW = ownerPW
	var out bytes.Buffer
	if err := api.Encrypt(bytes.NewReader(data), &out, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
