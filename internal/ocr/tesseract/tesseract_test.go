package tesseract

import (
	"context"
	"strings"
	"testing"

	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTesseract(t *testing.T) {
	t.Helper()
	if !Available("eng") {
		t.Skip("tesseract with eng language data not available")
	}
}

func TestEngine_RecognizesRenderedText(t *testing.T) {
	requireTesseract(t)

	s, err := New(Options{}).NewSession("eng")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec, err := s.Recognize(context.Background(), ocr.Preprocess(testutil.TextImage("INVOICE")))
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(strings.Join(strings.Fields(rec.Text), "")), "INVOICE")
	assert.Greater(t, rec.Confidence, 0.0)
	assert.LessOrEqual(t, rec.Confidence, 1.0)
}

func TestEngine_BlankImageIsEmpty(t *testing.T) {
	requireTesseract(t)

	s, err := New(Options{}).NewSession("eng")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec, err := s.Recognize(context.Background(), testutil.BlankImage(200, 100))
	require.NoError(t, err)
	assert.Empty(t, rec.Text)
}

func TestEngine_MissingLanguage(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{TessdataPrefix: dir}).NewSession("eng")
	assert.Error(t, err)
}

func TestEngine_AvailableLanguagesFromPrefix(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "xyz.traineddata", nil)

	langs, err := New(Options{TessdataPrefix: dir}).AvailableLanguages()
	require.NoError(t, err)
	assert.Equal(t, []string{"xyz"}, langs)

	_, err = New(Options{TessdataPrefix: dir}).NewSession("eng")
	assert.ErrorContains(t, err, "not installed")
}

func TestEngine_Name(t *testing.T) {
	assert.Equal(t, "tesseract", New(Options{}).Name())
}
