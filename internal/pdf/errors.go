package pdf

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument is returned when the bytes cannot be opened as a PDF.
	ErrMalformedDocument = errors.New("malformed PDF document")

	// ErrPasswordRequired is wrapped into ErrMalformedDocument when the
	// document is encrypted and no working credentials were supplied.
	ErrPasswordRequired = errors.New("document is encrypted and requires a password")

	// ErrClosed is returned by operations on a closed document.
	ErrClosed = errors.New("document is closed")
)

// malformed wraps cause so that errors.Is matches both ErrMalformedDocument and cause.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrMalformedDocument, fmt.Errorf(format, args...))
}

// PageRenderError reports that a single page could not be rasterized.
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error {
	return e.Err
}

func renderError(page int, format string, args ...any) error {
	return &PageRenderError{Page: page, Err: fmt.Errorf(format, args...)}
}
