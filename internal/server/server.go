// Package server exposes the extraction pipeline over HTTP and WebSocket.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/deckscan/internal/extract"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	extractor   *extract.Extractor
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	rateLimiter *RateLimiter
	version     string
	logger      *slog.Logger
	router      chi.Router
}

// Config holds server configuration.
type Config struct {
	CORSOrigin  string
	MaxUploadMB int64
	// Timeout bounds a single extraction.
	Timeout time.Duration
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter *RateLimiter
	Version     string
	Logger      *slog.Logger
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewServer creates a server that runs extractions with ex.
func NewServer(ex *extract.Extractor, config Config) (*Server, error) {
	if ex == nil {
		return nil, errors.New("extractor is required")
	}
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		extractor:   ex,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     config.Timeout,
		rateLimiter: config.RateLimiter,
		version:     config.Version,
		logger:      config.Logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.observeMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(s.corsOrigin),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         86400,
	}))

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/extract", s.extractHandler)
		r.Get("/extract/ws", s.extractWebSocketHandler)
	})
	return r
}

func splitOrigins(origin string) []string {
	parts := strings.Split(origin, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
