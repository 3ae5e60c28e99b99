package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 2.0, cfg.Render.Scale, 0)
	assert.Equal(t, "mupdf", cfg.Render.Backend)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.True(t, cfg.OCR.Preprocess)
	assert.Zero(t, cfg.Extract.MaxPages)
	assert.Positive(t, cfg.Extract.Workers)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"yaml format", func(c *Config) { c.Output.Format = "yaml" }, ""},
		{"empty format", func(c *Config) { c.Output.Format = "" }, ""},
		{"unknown backend", func(c *Config) { c.Render.Backend = "ghostscript" }, "unknown render backend"},
		{"compose backend", func(c *Config) { c.Render.Backend = "Compose" }, ""},
		{"mupdf backend", func(c *Config) { c.Render.Backend = "mupdf" }, ""},
		{"negative scale", func(c *Config) { c.Render.Scale = -1 }, "raster scale"},
		{"bad language", func(c *Config) { c.OCR.Language = "!!" }, "language"},
		{"bad confidence", func(c *Config) { c.OCR.MinConfidence = 1.5 }, "min confidence"},
		{"bad psm", func(c *Config) { c.OCR.PageSegMode = 14 }, "page_seg_mode"},
		{"negative max pages", func(c *Config) { c.Extract.MaxPages = -3 }, "max pages"},
		{"negative timeout", func(c *Config) { c.Extract.PageTimeout = -time.Second }, "page timeout"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"upload zero", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload size"},
		{"timeout zero", func(c *Config) { c.Server.TimeoutSec = 0 }, "invalid timeout"},
		{"negative rate", func(c *Config) { c.Server.RateLimit.RequestsPerHour = -1 }, "rate limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ToExtractConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.Scale = 3
	cfg.OCR.Language = "deu+eng"
	cfg.OCR.MinConfidence = 0.4
	cfg.Extract.MaxPages = 7
	cfg.Extract.Workers = 2
	cfg.Extract.PageTimeout = 30 * time.Second

	ec := cfg.ToExtractConfig()
	assert.InDelta(t, 3.0, ec.RasterScale, 0)
	assert.Equal(t, 7, ec.MaxPages)
	assert.Equal(t, 2, ec.Workers)
	assert.Equal(t, 30*time.Second, ec.PageTimeout)
	assert.Equal(t, "deu+eng", ec.OCR.Language)
	assert.InDelta(t, 0.4, ec.OCR.MinConfidence, 0)
	assert.True(t, ec.OCR.Preprocess)
	assert.True(t, ec.Credentials.Empty())
}

func TestServerConfig_Addr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:9000", ServerConfig{Host: "0.0.0.0", Port: 9000}.Addr())
}
