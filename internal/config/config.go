package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

// Config represents the complete configuration for deckscan. It covers the
// extract, serve and mcp commands and is loaded from configuration files,
// environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Render  RenderConfig  `mapstructure:"render" yaml:"render" json:"render"`
	OCR     OCRConfig     `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract" json:"extract"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
}

// RenderConfig contains page rasterization settings.
type RenderConfig struct {
	Scale float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
	// Backend names a registered rasterizer: mupdf paints the whole page,
	// compose places embedded images only. Empty selects mupdf.
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
}

// OCRConfig contains recognition settings.
type OCRConfig struct {
	Language       string  `mapstructure:"language" yaml:"language" json:"language"`
	MinConfidence  float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	Preprocess     bool    `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	TessdataPrefix string  `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	PageSegMode    int     `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
}

// ExtractConfig contains orchestration settings.
type ExtractConfig struct {
	MaxPages    int           `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages"`
	Workers     int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	PageTimeout time.Duration `mapstructure:"page_timeout" yaml:"page_timeout" json:"page_timeout"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// Output formats accepted by the extract command.
var OutputFormats = []string{"text", "json", "yaml", "csv"}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	ocrDefaults := ocr.DefaultConfig()
	return Config{
		LogLevel: "info",
		Render: RenderConfig{
			Scale:   pdf.DefaultScale,
			Backend: pdf.DefaultRasterizer,
		},
		OCR: OCRConfig{
			Language:      ocrDefaults.Language,
			MinConfidence: ocrDefaults.MinConfidence,
			Preprocess:    ocrDefaults.Preprocess,
			PageSegMode:   3,
		},
		Extract: ExtractConfig{
			Workers: runtime.NumCPU(),
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      120,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(logLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(OutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(OutputFormats, ", "))
	}
	if c.Render.Backend != "" && !slices.Contains(pdf.Rasterizers(), strings.ToLower(c.Render.Backend)) {
		return fmt.Errorf("unknown render backend: %s (available: %s)",
			c.Render.Backend, strings.Join(pdf.Rasterizers(), ", "))
	}
	if c.OCR.PageSegMode < 0 || c.OCR.PageSegMode > 13 {
		return fmt.Errorf("invalid ocr.page_seg_mode: %d (must be between 0 and 13)", c.OCR.PageSegMode)
	}
	if err := c.ToExtractConfig().Validate(); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
		return errors.New("rate limits must be non-negative")
	}
	return nil
}

// ToOCRConfig converts to the recognition adapter configuration.
func (c *Config) ToOCRConfig() ocr.Config {
	return ocr.Config{
		Language:      c.OCR.Language,
		MinConfidence: c.OCR.MinConfidence,
		Preprocess:    c.OCR.Preprocess,
	}
}

// ToExtractConfig converts to the orchestrator configuration. Passwords
// are never read from configuration files and must be set by the caller.
func (c *Config) ToExtractConfig() extract.Config {
	return extract.Config{
		RasterScale: c.Render.Scale,
		MaxPages:    c.Extract.MaxPages,
		Workers:     c.Extract.Workers,
		PageTimeout: c.Extract.PageTimeout,
		OCR:         c.ToOCRConfig(),
	}
}

// Addr returns the server listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
