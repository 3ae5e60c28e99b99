// Package document holds the immutable result types produced by a text
// extraction run: per-page results, aggregate statistics and the combined
// document text.
package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Method records how the text of a page was obtained.
type Method int

const (
	// MethodNone means no text could be obtained for the page.
	MethodNone Method = iota
	// MethodNative means the text came from the page's text-showing operators.
	MethodNative
	// MethodOCR means the page was rasterized and recognized.
	MethodOCR
)

const methodUnknown = "unknown"

// String returns the string representation of the method.
func (m Method) String() string {
	switch m {
	case MethodNative:
		return "Native"
	case MethodOCR:
		return "OCR"
	case MethodNone:
		return "None"
	default:
		return methodUnknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	s := m.String()
	if s == methodUnknown {
		return nil, fmt.Errorf("invalid method %d", int(m))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Matching is case-insensitive.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMethod parses "Native", "OCR" or "None" (case-insensitive).
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return MethodNative, nil
	case "ocr":
		return MethodOCR, nil
	case "none", "":
		return MethodNone, nil
	default:
		return MethodNone, fmt.Errorf("unknown extraction method %q", s)
	}
}

// Page is the extraction result for a single, 1-indexed page.
type Page struct {
	PageNumber     int     `json:"pageNumber" yaml:"pageNumber"`
	Text           string  `json:"text" yaml:"text"`
	Method         Method  `json:"method" yaml:"method"`
	CharacterCount int     `json:"characterCount" yaml:"characterCount"`
	Confidence     float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	// Error carries the reason a page degraded to MethodNone.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewPage builds a page result with CharacterCount derived from text.
func NewPage(number int, text string, method Method) Page {
	return Page{
		PageNumber:     number,
		Text:           text,
		Method:         method,
		CharacterCount: CountCharacters(text),
	}
}

// UsedOCR reports whether the page text came from recognition.
func (p Page) UsedOCR() bool {
	return p.Method == MethodOCR
}

// Stats aggregates counts over all pages of a result.
type Stats struct {
	TotalCharacters int `json:"totalCharacters" yaml:"totalCharacters"`
	TotalWords      int `json:"totalWords" yaml:"totalWords"`
	PagesWithOCR    int `json:"pagesWithOCR" yaml:"pagesWithOCR"`
	PagesWithNoText int `json:"pagesWithNoText" yaml:"pagesWithNoText"`
}

// Meta describes the source document of a result.
type Meta struct {
	// DocumentPages is the page count reported when the document was opened.
	DocumentPages int
	ByteLength    int
	Encrypted     bool
	Duration      time.Duration
}

// Result is the document level extraction result.
type Result struct {
	PageCount     int    `json:"pageCount" yaml:"pageCount"`
	Pages         []Page `json:"pages" yaml:"pages"`
	FullText      string `json:"fullText" yaml:"fullText"`
	Stats         Stats  `json:"stats" yaml:"stats"`
	DocumentPages int    `json:"documentPages" yaml:"documentPages"`
	Truncated     bool   `json:"truncated" yaml:"truncated"`
	Encrypted     bool   `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
	ByteLength    int    `json:"byteLength" yaml:"byteLength"`
	ProcessingMs  int64  `json:"processingTimeMs" yaml:"processingTimeMs"`
}

// Build assembles a Result from page results. Pages are copied and sorted
// by page number; statistics and the full text are derived from them.
func Build(pages []Page, meta Meta) *Result {
	sorted := make([]Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PageNumber < sorted[j].PageNumber
	})
	for i := range sorted {
		sorted[i].CharacterCount = CountCharacters(sorted[i].Text)
	}

	docPages := meta.DocumentPages
	if docPages < len(sorted) {
		docPages = len(sorted)
	}

	return &Result{
		PageCount:     len(sorted),
		Pages:         sorted,
		FullText:      FullText(sorted),
		Stats:         ComputeStats(sorted),
		DocumentPages: docPages,
		Truncated:     docPages > len(sorted),
		Encrypted:     meta.Encrypted,
		ByteLength:    meta.ByteLength,
		ProcessingMs:  meta.Duration.Milliseconds(),
	}
}

// ComputeStats derives aggregate statistics from pages.
func ComputeStats(pages []Page) Stats {
	var s Stats
	for _, p := range pages {
		s.TotalCharacters += p.CharacterCount
		s.TotalWords += CountWords(p.Text)
		switch p.Method {
		case MethodOCR:
			s.PagesWithOCR++
		case MethodNone:
			s.PagesWithNoText++
		case MethodNative:
		}
	}
	return s
}

// FullText concatenates page texts separated by page markers. Pages
// without text contribute nothing.
func FullText(pages []Page) string {
	var b strings.Builder
	for _, p := range pages {
		switch p.Method {
		case MethodNative:
			fmt.Fprintf(&b, "\n--- Page %d ---\n%s\n", p.PageNumber, p.Text)
		case MethodOCR:
			fmt.Fprintf(&b, "\n--- Page %d (OCR) ---\n%s\n", p.PageNumber, p.Text)
		case MethodNone:
		}
	}
	return strings.TrimSpace(b.String())
}

// CountCharacters counts Unicode scalar values, not bytes.
func CountCharacters(s string) int {
	return utf8.RuneCountInString(s)
}

// CountWords counts maximal runs of non-whitespace characters.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Validate checks the structural invariants of a result.
func (r *Result) Validate() error {
	if r == nil {
		return errors.New("nil result")
	}
	if r.PageCount != len(r.Pages) {
		return fmt.Errorf("page count %d does not match %d pages", r.PageCount, len(r.Pages))
	}
	sum := 0
	for i, p := range r.Pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("page at index %d has number %d, want %d", i, p.PageNumber, i+1)
		}
		if p.CharacterCount != CountCharacters(p.Text) {
			return fmt.Errorf("page %d character count %d does not match text", p.PageNumber, p.CharacterCount)
		}
		sum += p.CharacterCount
	}
	if sum != r.Stats.TotalCharacters {
		return fmt.Errorf("total characters %d does not match page sum %d", r.Stats.TotalCharacters, sum)
	}
	return nil
}

// Methods returns the extraction method of every page in order.
func (r *Result) Methods() []Method {
	out := make([]Method, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Method
	}
	return out
}
