package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/deckscan/internal/config"
	"github.com/MeKo-Tech/deckscan/internal/server"
	"github.com/MeKo-Tech/deckscan/internal/version"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the extraction API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for text extraction.

The server provides the following endpoints:
  POST /v1/extract     - Extract an uploaded PDF (multipart field "pdf")
  GET  /v1/extract/ws  - WebSocket extraction with per page progress
  GET  /health         - Health check endpoint
  GET  /metrics        - Prometheus metrics

Examples:
  deckscan serve
  deckscan serve --port 8080
  deckscan serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringP("host", "H", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origins (comma separated)")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 120, "extraction timeout in seconds")
	f.Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	f.Bool("rate-limit-enabled", false, "enable rate limiting")
	f.Int("requests-per-minute", 60, "maximum requests per minute per client")
	f.Int("requests-per-hour", 1000, "maximum requests per hour per client")
	f.Int("max-requests-per-day", 0, "maximum requests per day per client (0 = unlimited)")
	f.Int64("max-data-per-day", 0, "maximum bytes uploaded per day per client (0 = unlimited)")
	addExtractionFlags(f)
}

// applyServeFlags copies explicitly set server flags over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	s := &cfg.Server
	if f.Changed("host") {
		s.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		s.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		s.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-upload-size") {
		s.MaxUploadMB, _ = f.GetInt("max-upload-size")
	}
	if f.Changed("timeout") {
		s.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		s.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("rate-limit-enabled") {
		s.RateLimit.Enabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		s.RateLimit.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		s.RateLimit.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	if f.Changed("max-requests-per-day") {
		s.RateLimit.MaxRequestsPerDay, _ = f.GetInt("max-requests-per-day")
	}
	if f.Changed("max-data-per-day") {
		s.RateLimit.MaxDataPerDay, _ = f.GetInt64("max-data-per-day")
	}
}

// buildServer creates the API server from cfg.
func buildServer(cfg *config.Config) (*server.Server, error) {
	ex, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}

	var rl *server.RateLimiter
	if r := cfg.Server.RateLimit; r.Enabled {
		rl = server.NewRateLimiter(r.RequestsPerMinute, r.RequestsPerHour, r.MaxRequestsPerDay, r.MaxDataPerDay)
	}

	return server.NewServer(ex, server.Config{
		CORSOrigin:  cfg.Server.CORSOrigin,
		MaxUploadMB: int64(cfg.Server.MaxUploadMB),
		Timeout:     time.Duration(cfg.Server.TimeoutSec) * time.Second,
		RateLimiter: rl,
		Version:     version.Version,
		Logger:      logger,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := GetConfig()
	applyServeFlags(cmd, cfg)
	if err := applyExtractionFlags(cmd, cfg); err != nil {
		return err
	}

	srv, err := buildServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	timeout := time.Duration(cfg.Server.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Extraction time plus headroom for writing the result.
		WriteTimeout: timeout + 30*time.Second,
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	go func() {
		logger.Info("starting extraction server", "addr", httpServer.Addr, "version", version.Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, initiating shutdown")
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	logger.Info("starting graceful shutdown", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	logger.Info("graceful shutdown completed")
	return nil
}
