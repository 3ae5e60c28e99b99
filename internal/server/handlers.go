package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

const formatText = "text"

// ExtractOptions are per-request overrides of the server's extraction
// configuration. Zero values keep the server default.
type ExtractOptions struct {
	Language      string  `json:"language,omitempty"`
	Scale         float64 `json:"scale,omitempty"`
	MaxPages      int     `json:"max_pages,omitempty"`
	Password      string  `json:"password,omitempty"`
	OwnerPassword string  `json:"owner_password,omitempty"`
}

// Validate checks option ranges.
func (o ExtractOptions) Validate() error {
	if o.Language != "" {
		if _, err := ocr.NormalizeLanguage(o.Language); err != nil {
			return err
		}
	}
	if o.Scale < 0 || o.Scale > 10 {
		return fmt.Errorf("scale must be between 0 and 10, got %g", o.Scale)
	}
	if o.MaxPages < 0 {
		return fmt.Errorf("max_pages must be non-negative, got %d", o.MaxPages)
	}
	return nil
}

func (o ExtractOptions) apply(c *extract.Config) {
	if o.Language != "" {
		c.OCR.Language = o.Language
	}
	if o.Scale > 0 {
		c.RasterScale = o.Scale
	}
	if o.MaxPages > 0 {
		c.MaxPages = o.MaxPages
	}
	c.Credentials = pdf.Credentials{UserPassword: o.Password, OwnerPassword: o.OwnerPassword}
}

// optionsFromForm reads ExtractOptions from multipart form values.
func optionsFromForm(r *http.Request) (ExtractOptions, error) {
	opts := ExtractOptions{
		Language:      r.FormValue("language"),
		Password:      r.FormValue("password"),
		OwnerPassword: r.FormValue("owner_password"),
	}
	if v := r.FormValue("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, fmt.Errorf("invalid scale %q", v)
		}
		opts.Scale = f
	}
	if v := r.FormValue("max_pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid max_pages %q", v)
		}
		opts.MaxPages = n
	}
	return opts, opts.Validate()
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// extractHandler runs an extraction on an uploaded PDF.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "body too large") {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "file too large")
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to parse form data")
		return
	}

	file, _, err := r.FormFile("pdf")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "no PDF file provided in field \"pdf\"")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "failed to read PDF data")
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	opts, err := optionsFromForm(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.runExtraction(ctx, "http", data, opts, nil)
	if err != nil {
		status, errorType := classifyError(err)
		s.writeError(w, r, status, errorType, err.Error())
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, res.FullText)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// runExtraction applies opts to the server's extractor and runs it.
func (s *Server) runExtraction(ctx context.Context, transport string, data []byte,
	opts ExtractOptions, progress func(extract.Progress),
) (*document.Result, error) {
	var extra []extract.Option
	if progress != nil {
		extra = append(extra, extract.WithProgress(progress))
	}
	ex := s.extractor.With(opts.apply, extra...)

	start := time.Now()
	res, err := ex.ExtractDocument(ctx, data)
	extractionDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	if err != nil {
		_, errorType := classifyError(err)
		extractionsTotal.WithLabelValues(transport, errorType).Inc()
		return nil, err
	}
	extractionsTotal.WithLabelValues(transport, "success").Inc()
	return res, nil
}

// classifyError maps extraction errors to an HTTP status and error type.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, pdf.ErrPasswordRequired):
		return http.StatusUnprocessableEntity, "password_required"
	case errors.Is(err, extract.ErrMalformedDocument):
		return http.StatusUnprocessableEntity, "malformed_document"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
