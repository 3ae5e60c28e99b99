package benchmark

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/extract"
)

// ExtractorFactory builds an extractor that rasterizes with backend.
type ExtractorFactory func(backend string) (*extract.Extractor, error)

// BackendResult is the timing of one document under one rasterizer backend.
type BackendResult struct {
	Document     string
	Backend      string
	Pages        int
	PagesWithOCR int
	Result       Result
	// Speedup relative to the baseline backend; 1 for the baseline itself.
	Speedup float64
}

func (r BackendResult) String() string {
	if r.Result.Error != nil {
		return fmt.Sprintf("%s [%s]: ERROR - %v", filepath.Base(r.Document), r.Backend, r.Result.Error)
	}
	return fmt.Sprintf("%s [%s]: %d pages (%d OCR), avg %v, %.2fx, alloc %d KB",
		filepath.Base(r.Document), r.Backend, r.Pages, r.PagesWithOCR,
		r.Result.Average(), r.Speedup, r.Result.AllocatedKB())
}

// BackendComparison extracts the same documents with every backend. The
// first backend is the baseline for speedups.
type BackendComparison struct {
	newExtractor ExtractorFactory
	backends     []string
	documents    []string
	results      []BackendResult
}

// NewBackendComparison creates a comparison over backends.
func NewBackendComparison(factory ExtractorFactory, backends []string) *BackendComparison {
	return &BackendComparison{newExtractor: factory, backends: backends}
}

// AddDocument adds a PDF to benchmark.
func (b *BackendComparison) AddDocument(path string) {
	b.documents = append(b.documents, path)
}

// Run benchmarks every document with every backend. A backend that cannot
// be constructed fails the run; extraction errors are kept per result.
func (b *BackendComparison) Run(ctx context.Context, iterations int) ([]BackendResult, error) {
	if len(b.backends) == 0 {
		return nil, errors.New("no backends to compare")
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	extractors := make([]*extract.Extractor, len(b.backends))
	for i, name := range b.backends {
		ex, err := b.newExtractor(name)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		extractors[i] = ex
	}

	b.results = b.results[:0]
	for _, doc := range b.documents {
		var baseline time.Duration
		for i, name := range b.backends {
			r := b.benchmarkDocument(ctx, extractors[i], doc, name, iterations)
			if i == 0 {
				baseline = r.Result.Average()
			}
			if avg := r.Result.Average(); avg > 0 && r.Result.Error == nil {
				r.Speedup = float64(baseline) / float64(avg)
			}
			b.results = append(b.results, r)
			if err := ctx.Err(); err != nil {
				return b.results, err
			}
		}
	}
	return b.results, nil
}

func (b *BackendComparison) benchmarkDocument(ctx context.Context, ex *extract.Extractor, doc, backend string,
	iterations int,
) BackendResult {
	var last *document.Result
	bench := Benchmark{
		Name: filepath.Base(doc) + "/" + backend,
		Func: func() error {
			res, err := ex.ExtractFile(ctx, doc)
			if err != nil {
				return err
			}
			last = res
			return nil
		},
	}
	r := BackendResult{Document: doc, Backend: backend, Result: run(bench, iterations)}
	if last != nil {
		r.Pages = last.PageCount
		r.PagesWithOCR = last.Stats.PagesWithOCR
	}
	return r
}

// Results returns the results of the last Run.
func (b *BackendComparison) Results() []BackendResult {
	return b.results
}

// PrintDetailedResults writes per document results and a summary.
func (b *BackendComparison) PrintDetailedResults(w io.Writer) {
	if len(b.results) == 0 {
		_, _ = fmt.Fprintln(w, "No benchmark results available")
		return
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("=", 60))
	_, _ = fmt.Fprintln(w, "Rasterizer Backend Benchmark Results")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 60))
	_, _ = fmt.Fprintf(w, "System: %s/%s, %d CPUs, %s\n\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())

	for _, r := range b.results {
		_, _ = fmt.Fprintf(w, "• %s\n", r.String())
	}
	_, _ = fmt.Fprintln(w)

	totals := make(map[string]time.Duration, len(b.backends))
	failures := make(map[string]int, len(b.backends))
	for _, r := range b.results {
		if r.Result.Error != nil {
			failures[r.Backend]++
			continue
		}
		totals[r.Backend] += r.Result.Average()
	}
	_, _ = fmt.Fprintln(w, "Summary (sum of per-document averages):")
	for _, name := range b.backends {
		_, _ = fmt.Fprintf(w, "  %-10s %v", name, totals[name])
		if failures[name] > 0 {
			_, _ = fmt.Fprintf(w, " (%d failed)", failures[name])
		}
		_, _ = fmt.Fprintln(w)
	}
}

// WriteCSV writes one row per document and backend.
func (b *BackendComparison) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"document", "backend", "pages", "ocr_pages", "avg_ms", "speedup", "alloc_kb", "error"}); err != nil {
		return err
	}
	for _, r := range b.results {
		errText := ""
		if r.Result.Error != nil {
			errText = r.Result.Error.Error()
		}
		row := []string{
			r.Document,
			r.Backend,
			strconv.Itoa(r.Pages),
			strconv.Itoa(r.PagesWithOCR),
			strconv.FormatFloat(float64(r.Result.Average().Microseconds())/1000, 'f', 2, 64),
			strconv.FormatFloat(r.Speedup, 'f', 2, 64),
			strconv.FormatUint(r.Result.AllocatedKB(), 10),
			errText,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
