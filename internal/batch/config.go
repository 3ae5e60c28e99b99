package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/document"
)

// Config holds all configuration for batch extraction.
type Config struct {
	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Parallel is the number of documents extracted at once. Pages within
	// a document are parallelized by the extractor itself.
	Parallel int
	// FailFast aborts the batch on the first document error.
	FailFast bool
}

// DefaultIncludePatterns select PDF files when a directory is given.
var DefaultIncludePatterns = []string{"*.pdf", "*.PDF"}

// Item is the outcome of one document.
type Item struct {
	File   string           `json:"file" yaml:"file"`
	Result *document.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string           `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the extraction error of the item, if any.
func (i Item) Err() error { return i.err }

// Result holds the result of batch extraction in input order.
type Result struct {
	Items    []Item        `json:"documents" yaml:"documents"`
	Duration time.Duration `json:"-" yaml:"-"`
}

// Failed returns the number of documents that could not be extracted.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.err != nil {
			n++
		}
	}
	return n
}

// FormatResults formats the batch result in the specified format.
func (r *Result) FormatResults(format string) (string, error) {
	return Format(r, format)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = io.WriteString(w, output)
	return err
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	var pages, ocrPages, empty int
	for _, it := range r.Items {
		if it.Result == nil {
			continue
		}
		pages += it.Result.PageCount
		ocrPages += it.Result.Stats.PagesWithOCR
		empty += it.Result.Stats.PagesWithNoText
	}
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Documents: %d\n", len(r.Items))
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", r.Failed())
	_, _ = fmt.Fprintf(w, "  Pages: %d\n", pages)
	_, _ = fmt.Fprintf(w, "  Pages with OCR: %d\n", ocrPages)
	_, _ = fmt.Fprintf(w, "  Pages without text: %d\n", empty)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
}
