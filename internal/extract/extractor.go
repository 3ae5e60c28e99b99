// Package extract turns PDF bytes into a page indexed text result. Pages
// with embedded text are read natively; pages without it are rasterized
// and recognized. Failures on a page degrade that page to no text and never
// abort the document.
package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
	_ "github.com/MeKo-Tech/deckscan/internal/pdf/mupdf" // default rasterizer
)

// ErrMalformedDocument is returned when the input cannot be opened as a PDF.
var ErrMalformedDocument = pdf.ErrMalformedDocument

// Config controls a single extraction call.
type Config struct {
	// RasterScale is the rasterization scale for OCR input (default 2.0).
	RasterScale float64
	// MaxPages caps the number of pages processed; 0 means all pages.
	MaxPages int
	// Workers bounds concurrent page processing; 0 means runtime.NumCPU().
	Workers int
	// PageTimeout bounds rasterization and, separately, recognition of one
	// page. Waiting for the shared OCR session is not counted. 0 disables it.
	PageTimeout time.Duration
	OCR         ocr.Config
	Credentials pdf.Credentials
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() Config {
	return Config{
		RasterScale: pdf.DefaultScale,
		Workers:     runtime.NumCPU(),
		OCR:         ocr.DefaultConfig(),
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.RasterScale < 0 || c.RasterScale > 10 {
		return fmt.Errorf("raster scale must be between 0 and 10, got %f", c.RasterScale)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages must be non-negative, got %d", c.MaxPages)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.PageTimeout < 0 {
		return fmt.Errorf("page timeout must be non-negative, got %s", c.PageTimeout)
	}
	return c.OCR.Validate()
}

// Progress is reported after each page completes.
type Progress struct {
	Page      int             `json:"page"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Method    document.Method `json:"method"`
	Elapsed   time.Duration   `json:"-"`
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProgress registers a callback invoked after each page. Calls are
// serialized.
func WithProgress(fn func(Progress)) Option {
	return func(e *Extractor) { e.progress = fn }
}

// WithRasterizer selects the page rasterization backend.
func WithRasterizer(r pdf.Rasterizer) Option {
	return func(e *Extractor) { e.rasterizer = r }
}

// Extractor runs extractions. It holds no per-document state and is safe
// for concurrent use; each call owns its document and OCR session.
type Extractor struct {
	engine     ocr.Engine
	cfg        Config
	logger     *slog.Logger
	progress   func(Progress)
	rasterizer pdf.Rasterizer
}

// New returns an Extractor that uses engine for pages without text.
func New(engine ocr.Engine, cfg Config, opts ...Option) *Extractor {
	if cfg.RasterScale <= 0 {
		cfg.RasterScale = pdf.DefaultScale
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = ocr.DefaultLanguage
	}
	e := &Extractor{engine: engine, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config { return e.cfg }

// With returns a copy of the extractor with fn applied to its configuration.
func (e *Extractor) With(fn func(*Config), opts ...Option) *Extractor {
	cfg := e.cfg
	if fn != nil {
		fn(&cfg)
	}
	base := []Option{WithLogger(e.logger), WithProgress(e.progress), WithRasterizer(e.rasterizer)}
	return New(e.engine, cfg, append(base, opts...)...)
}

// ExtractFile reads path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*document.Result, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading a user supplied document is the purpose
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.ExtractDocument(ctx, data)
}

// ExtractDocument extracts text from every page of data. It fails only
// with ErrMalformedDocument or when ctx is cancelled; page failures are
// reflected as pages with method None. The OCR session, if one was
// started, is terminated before returning on every path.
func (e *Extractor) ExtractDocument(ctx context.Context, data []byte) (*document.Result, error) {
	start := time.Now()

	doc, err := pdf.Open(data,
		pdf.WithCredentials(e.cfg.Credentials),
		pdf.WithRasterizer(e.rasterizer),
		pdf.WithLogger(e.logger),
	)
	if err != nil {
		documentsTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}
	defer func() { _ = doc.Close() }()

	adapter := ocr.NewAdapter(e.engine, e.cfg.OCR, e.logger)
	adapter.SetHooks(ocr.Hooks{
		SessionStarted: func(engine string) { ocrSessionsTotal.WithLabelValues(engine, "started").Inc() },
		SessionFailed:  func(engine string, _ error) { ocrSessionsTotal.WithLabelValues(engine, "failed").Inc() },
		Terminated:     func(engine string) { ocrSessionsTotal.WithLabelValues(engine, "terminated").Inc() },
	})
	adapter.SetTimeout(e.cfg.PageTimeout)
	defer func() {
		if err := adapter.Terminate(); err != nil {
			e.logger.Warn("failed to terminate OCR session", "error", err)
		}
	}()

	total := doc.PageCount()
	n := total
	if e.cfg.MaxPages > 0 && e.cfg.MaxPages < n {
		n = e.cfg.MaxPages
	}

	pages, err := e.processPages(ctx, doc, adapter, n)
	if err != nil {
		documentsTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("extraction cancelled: %w", err)
	}

	res := document.Build(pages, document.Meta{
		DocumentPages: total,
		ByteLength:    doc.ByteLength(),
		Encrypted:     doc.Encrypted(),
		Duration:      time.Since(start),
	})
	documentsTotal.WithLabelValues("ok").Inc()
	e.logger.Info("document extracted",
		"pages", res.PageCount,
		"document_pages", res.DocumentPages,
		"ocr_pages", res.Stats.PagesWithOCR,
		"empty_pages", res.Stats.PagesWithNoText,
		"characters", res.Stats.TotalCharacters,
		"duration_ms", res.ProcessingMs)
	return res, nil
}

// processPages runs pages 1..n on a bounded pool. Results land in a slice
// indexed by page so the order is independent of scheduling.
func (e *Extractor) processPages(ctx context.Context, doc *pdf.Document, adapter *ocr.Adapter, n int) ([]document.Page, error) {
	pages := make([]document.Page, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	var (
		completed int
		emitMu    sync.Mutex
	)
	for i := 1; i <= n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			p, err := e.processPage(gctx, doc, adapter, i)
			if err != nil {
				return err
			}
			pages[i-1] = p

			elapsed := time.Since(start)
			pagesTotal.WithLabelValues(p.Method.String()).Inc()
			pageDuration.WithLabelValues(p.Method.String()).Observe(elapsed.Seconds())

			if e.progress != nil {
				emitMu.Lock()
				completed++
				e.progress(Progress{Page: i, Total: n, Completed: completed, Method: p.Method, Elapsed: elapsed})
				emitMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancellation that raced with the last page still fails the call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

// pageState tracks a page through extraction.
type pageState int

const (
	statePending pageState = iota
	stateNativeAttempted
	stateOCRAttempted
	stateDone
)

func (s pageState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateNativeAttempted:
		return "native_attempted"
	case stateOCRAttempted:
		return "ocr_attempted"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// pageRun is the state of one page. Only cancellation of the whole call
// escapes as an error; every other failure ends in Done(None).
type pageRun struct {
	number int
	state  pageState
	logger *slog.Logger
}

func (r *pageRun) advance(to pageState) {
	r.logger.Debug("page state", "page", r.number, "from", r.state.String(), "to", to.String())
	r.state = to
}

func (r *pageRun) done(text string, method document.Method) document.Page {
	r.advance(stateDone)
	return document.NewPage(r.number, text, method)
}

func (r *pageRun) none(reason string, err error) document.Page {
	pageFailures.WithLabelValues(reason).Inc()
	p := r.done("", document.MethodNone)
	p.Error = reason
	if err != nil {
		p.Error = fmt.Sprintf("%s: %v", reason, err)
		r.logger.Warn("page degraded to no text", "page", r.number, "reason", reason, "error", err)
	}
	return p
}

func (e *Extractor) processPage(ctx context.Context, doc *pdf.Document, adapter *ocr.Adapter, number int) (document.Page, error) {
	run := &pageRun{number: number, state: statePending, logger: e.logger}

	text := doc.ExtractText(number)
	run.advance(stateNativeAttempted)
	if text != "" {
		return run.done(text, document.MethodNative), nil
	}

	img, err := e.rasterize(ctx, doc, number)
	if err != nil {
		if ctx.Err() != nil {
			return document.Page{}, ctx.Err()
		}
		return run.none(failureReason("render", err), err), nil
	}
	if pdf.IsBlank(img) {
		return run.none("blank", nil), nil
	}

	run.advance(stateOCRAttempted)
	recognized, confidence, err := adapter.Recognize(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return document.Page{}, ctx.Err()
		}
		return run.none(failureReason("ocr_recognize", err), err), nil
	}
	if recognized == "" {
		return run.none("ocr_empty", nil), nil
	}

	p := run.done(recognized, document.MethodOCR)
	p.Confidence = confidence
	return p, nil
}

// rasterize renders one page under its own PageTimeout budget.
func (e *Extractor) rasterize(ctx context.Context, doc *pdf.Document, number int) (image.Image, error) {
	if e.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PageTimeout)
		defer cancel()
	}
	return doc.Rasterize(ctx, number, e.cfg.RasterScale)
}

func failureReason(fallback string, err error) string {
	var initErr *ocr.InitError
	switch {
	case errors.As(err, &initErr):
		return "ocr_init"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return fallback
	}
}
