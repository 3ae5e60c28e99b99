// Package pdf opens PDF documents, extracts their embedded text and
// rasterizes pages for recognition.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultScale is the rasterization scale relative to the nominal 72 DPI page size.
const DefaultScale = 2.0

// Credentials holds the passwords used to open an encrypted document.
type Credentials struct {
	UserPassword  string `json:"user_password,omitempty"`
	OwnerPassword string `json:"owner_password,omitempty"`
}

// Empty reports whether no password was supplied.
func (c Credentials) Empty() bool {
	return c.UserPassword == "" && c.OwnerPassword == ""
}

type openOptions struct {
	creds      Credentials
	rasterizer Rasterizer
	logger     *slog.Logger
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithCredentials supplies passwords for encrypted documents.
func WithCredentials(creds Credentials) OpenOption {
	return func(o *openOptions) { o.creds = creds }
}

// WithRasterizer selects the page rasterization backend.
func WithRasterizer(r Rasterizer) OpenOption {
	return func(o *openOptions) {
		if r != nil {
			o.rasterizer = r
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) OpenOption {
	return func(o *openOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Document is an opened PDF. It is owned by a single extraction call.
type Document struct {
	data       []byte
	byteLength int
	pageCount  int
	encrypted  bool
	rasterizer Rasterizer
	logger     *slog.Logger

	mu     sync.Mutex // guards reader and closed
	reader *pdf.Reader
	closed bool
}

// Open parses data as a PDF. Any structural failure is reported as
// ErrMalformedDocument.
func Open(data []byte, opts ...OpenOption) (doc *Document, err error) {
	o := openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rasterizer == nil {
		r, rerr := NewRasterizer("")
		if rerr != nil {
			r = ComposeRasterizer{}
		}
		o.rasterizer = r
	}

	if len(data) == 0 {
		return nil, malformed("empty input")
	}
	if !hasHeader(data) {
		return nil, malformed("missing %%PDF header")
	}

	// pdfcpu and the content parser both panic on some corrupt inputs.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = malformed("parser panic: %v", r)
		}
	}()

	conf := newConfiguration(o.creds)
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, ErrPasswordRequired)
		}
		return nil, malformed("read structure: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, malformed("page tree: %w", err)
	}
	if ctx.PageCount <= 0 {
		return nil, malformed("document has no pages")
	}

	doc = &Document{
		data:       data,
		byteLength: len(data),
		pageCount:  ctx.PageCount,
		encrypted:  ctx.Encrypt != nil,
		rasterizer: o.rasterizer,
		logger:     o.logger,
	}

	if doc.encrypted {
		plain, err := decrypt(data, o.creds)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
		}
		doc.data = plain
	}

	doc.reader = openContentReader(ctx, doc.data, o.logger)
	return doc, nil
}

// openContentReader returns a reader for content streams. When the raw bytes
// are not readable by the content parser the structure pdfcpu already
// repaired is written out once and parsed again. A nil reader means pages
// yield no native text.
func openContentReader(ctx *model.Context, data []byte, logger *slog.Logger) *pdf.Reader {
	if r, err := newContentReader(data); err == nil {
		return r
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		logger.Warn("content parser unavailable", "error", err)
		return nil
	}
	r, err := newContentReader(buf.Bytes())
	if err != nil {
		logger.Warn("content parser unavailable", "error", err)
		return nil
	}
	return r
}

func newContentReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("content parser panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func newConfiguration(creds Credentials) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.UserPW = creds.UserPassword
	conf.OwnerPW = creds.OwnerPassword
	return conf
}

func hasHeader(data []byte) bool {
	// Readers tolerate a little junk before the header.
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.pageCount }

// ByteLength returns the size of the source bytes.
func (d *Document) ByteLength() int { return d.byteLength }

// Encrypted reports whether the source was encrypted.
func (d *Document) Encrypted() bool { return d.encrypted }

// Bytes returns the (decrypted) PDF bytes. Callers must not modify them.
func (d *Document) Bytes() []byte { return d.data }

// Close releases the document. Further calls return ErrClosed.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.reader = nil
	return nil
}

// Rasterize renders the page at scale times its nominal size. Failures
// are returned as *PageRenderError.
func (d *Document) Rasterize(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := d.checkPage(pageNumber); err != nil {
		return nil, &PageRenderError{Page: pageNumber, Err: err}
	}
	if scale <= 0 {
		scale = DefaultScale
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := d.rasterizer.Rasterize(ctx, d, pageNumber, scale)
	if err != nil {
		var renderErr *PageRenderError
		if errors.As(err, &renderErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PageRenderError{Page: pageNumber, Err: err}
	}
	return img, nil
}

func (d *Document) checkPage(pageNumber int) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if pageNumber < 1 || pageNumber > d.pageCount {
		return fmt.Errorf("page %d out of range 1..%d", pageNumber, d.pageCount)
	}
	return nil
}

// withPage runs fn with the parsed page under the reader lock. It returns
// false when no content parser is available.
func (d *Document) withPage(pageNumber int, fn func(p pdf.Page)) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.reader == nil {
		return false
	}
	p := d.reader.Page(pageNumber)
	if p.V.IsNull() {
		return false
	}
	fn(p)
	return true
}
