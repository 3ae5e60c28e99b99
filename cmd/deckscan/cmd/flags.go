package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MeKo-Tech/deckscan/internal/config"
)

// addExtractionFlags registers the flags shared by every command that
// runs extractions. Defaults shown here are informational; unset flags
// keep the configured value.
func addExtractionFlags(fs *pflag.FlagSet) {
	d := config.DefaultConfig()
	fs.StringP("language", "l", d.OCR.Language, "OCR language: tesseract code (eng, deu, eng+deu) or BCP 47 tag (en, de)")
	fs.Float64("scale", d.Render.Scale, "raster scale factor for OCR (1.0 = 72 DPI)")
	fs.String("backend", "", "page rasterizer backend (mupdf, or compose for images only)")
	fs.Int("max-pages", 0, "process at most this many pages per document (0 = all)")
	fs.Int("workers", d.Extract.Workers, "pages processed concurrently per document")
	fs.Duration("page-timeout", 0, "time limit for rendering and recognizing one page (0 = none)")
	fs.Float64("min-confidence", d.OCR.MinConfidence, "discard OCR text below this mean confidence (0..1)")
	fs.Bool("no-preprocess", false, "disable grayscale and contrast preprocessing before OCR")
	fs.String("tessdata", "", "directory containing tesseract language data")
}

// applyExtractionFlags copies explicitly set flags over cfg and validates
// the result.
func applyExtractionFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("language") {
		cfg.OCR.Language, _ = f.GetString("language")
	}
	if f.Changed("scale") {
		cfg.Render.Scale, _ = f.GetFloat64("scale")
	}
	if f.Changed("backend") {
		cfg.Render.Backend, _ = f.GetString("backend")
	}
	if f.Changed("max-pages") {
		cfg.Extract.MaxPages, _ = f.GetInt("max-pages")
	}
	if f.Changed("workers") {
		cfg.Extract.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("page-timeout") {
		cfg.Extract.PageTimeout, _ = f.GetDuration("page-timeout")
	}
	if f.Changed("min-confidence") {
		cfg.OCR.MinConfidence, _ = f.GetFloat64("min-confidence")
	}
	if f.Changed("no-preprocess") {
		off, _ := f.GetBool("no-preprocess")
		cfg.OCR.Preprocess = !off
	}
	if f.Changed("tessdata") {
		cfg.OCR.TessdataPrefix, _ = f.GetString("tessdata")
	}
	return cfg.Validate()
}
