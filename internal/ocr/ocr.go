// Package ocr adapts a text recognition engine for page bitmaps. An
// Adapter owns at most one engine session for the duration of a single
// extraction call.
package ocr

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is the recognition language used when none is configured.
const DefaultLanguage = "eng"

// Recognition is the outcome of recognizing a single bitmap.
type Recognition struct {
	Text string
	// Confidence is the mean word confidence in the range 0..1.
	Confidence float64
}

// Engine creates recognition sessions. Creating a session is expensive
// (language data is loaded), so callers keep one per document.
type Engine interface {
	Name() string
	NewSession(language string) (Session, error)
}

// Session recognizes bitmaps. Implementations need not be safe for
// concurrent use; the Adapter serializes calls.
type Session interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
	Close() error
}

// Config controls recognition.
type Config struct {
	Language string `mapstructure:"language" yaml:"language" json:"language"`
	// MinConfidence drops results whose mean confidence is below it (0..1).
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	Preprocess    bool    `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
}

// DefaultConfig returns the default recognition configuration.
func DefaultConfig() Config {
	return Config{
		Language:      DefaultLanguage,
		MinConfidence: 0,
		Preprocess:    true,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if _, err := NormalizeLanguage(c.Language); err != nil {
		return err
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0 and 1, got %f", c.MinConfidence)
	}
	return nil
}

var tesseractCode = regexp.MustCompile(`^[a-z]{3}(_[a-z]+)*$`)

// NormalizeLanguage converts a language setting into tesseract form.
// Tesseract codes ("eng", "chi_sim") pass through, BCP 47 tags ("en",
// "de-CH") map to their ISO 639-3 code, and "+" joins several languages.
func NormalizeLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return DefaultLanguage, nil
	}

	parts := strings.Split(lang, "+")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if tesseractCode.MatchString(part) {
			out = append(out, part)
			continue
		}
		tag, err := language.Parse(part)
		if err != nil {
			return "", fmt.Errorf("invalid OCR language %q: %w", part, err)
		}
		base, _ := tag.Base()
		iso3 := base.ISO3()
		if len(iso3) != 3 {
			return "", fmt.Errorf("invalid OCR language %q: no ISO 639-3 code", part)
		}
		out = append(out, iso3)
	}
	return strings.Join(out, "+"), nil
}
