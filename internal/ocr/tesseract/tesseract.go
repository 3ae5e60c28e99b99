// Package tesseract implements ocr.Engine with the Tesseract engine via
// gosseract. Tesseract and its language data must be installed:
//
//	apt-get install tesseract-ocr tesseract-ocr-eng
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/deckscan/internal/ocr"
)

// EngineName identifies this engine in logs and metrics.
const EngineName = "tesseract"

// Options configure the engine.
type Options struct {
	// TessdataPrefix overrides the language data directory (TESSDATA_PREFIX).
	TessdataPrefix string
	// PageSegMode is passed to tesseract; 0 keeps the engine default.
	PageSegMode int
}

// Engine creates gosseract clients.
type Engine struct {
	opts Options
}

// New returns a tesseract engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return EngineName }

// NewSession implements ocr.Engine. It fails when language data for any of
// the requested languages is missing.
func (e *Engine) NewSession(language string) (ocr.Session, error) {
	langs := strings.Split(language, "+")
	if err := e.checkLanguages(langs); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(langs...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if e.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.opts.TessdataPrefix); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if e.opts.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(e.opts.PageSegMode)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}

	s := &session{client: client}
	// Tesseract loads its models on first recognition; do it now so that
	// broken installations fail here rather than on every page.
	if _, err := s.Recognize(context.Background(), imaging.New(32, 32, color.White)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize tesseract: %w", err)
	}
	return s, nil
}

func (e *Engine) checkLanguages(langs []string) error {
	available, err := e.AvailableLanguages()
	if err != nil || len(available) == 0 {
		// Unknown data directory; the warm-up recognition decides.
		return nil
	}
	for _, l := range langs {
		if !slices.Contains(available, l) {
			return fmt.Errorf("language data %q not installed (available: %s)", l, strings.Join(available, ", "))
		}
	}
	return nil
}

// AvailableLanguages lists installed language data.
func (e *Engine) AvailableLanguages() ([]string, error) {
	if e.opts.TessdataPrefix == "" {
		return gosseract.GetAvailableLanguages()
	}
	matches, err := filepath.Glob(filepath.Join(e.opts.TessdataPrefix, "*.traineddata"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
	}
	return out, nil
}

// Available reports whether tesseract can start with language.
func Available(language string) bool {
	s, err := New(Options{TessdataPrefix: os.Getenv("TESSDATA_PREFIX")}).NewSession(language)
	if err != nil {
		return false
	}
	_ = s.Close()
	return true
}

type session struct {
	client *gosseract.Client
}

func (s *session) Recognize(ctx context.Context, img image.Image) (ocr.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Recognition{}, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return ocr.Recognition{}, fmt.Errorf("encode bitmap: %w", err)
	}
	if err := s.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return ocr.Recognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := s.client.Text()
	if err != nil {
		return ocr.Recognition{}, fmt.Errorf("recognize text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ocr.Recognition{}, nil
	}

	return ocr.Recognition{Text: text, Confidence: meanConfidence(s.client)}, nil
}

func meanConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}

func (s *session) Close() error {
	return s.client.Close()
}
