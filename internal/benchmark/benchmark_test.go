package benchmark

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr/ocrtest"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
)

func TestTimer(t *testing.T) {
	timer := NewTimer("sleep")
	time.Sleep(time.Millisecond)
	d := timer.Stop()
	assert.GreaterOrEqual(t, d, time.Millisecond)
	assert.Equal(t, d, timer.Duration())
	assert.Contains(t, timer.String(), "sleep:")
}

func TestSuiteRun(t *testing.T) {
	suite := NewSuite()
	calls := 0
	suite.Add("success", func() error {
		calls++
		return nil
	})
	suite.Add("failure", func() error {
		return errors.New("test error")
	})

	result := suite.Run("success", 5)
	require.NoError(t, result.Error)
	assert.Equal(t, 5, result.Iterations)
	assert.Equal(t, 5, calls)
	assert.Equal(t, result.Duration/5, result.Average())

	result = suite.Run("failure", 3)
	require.Error(t, result.Error)
	assert.Equal(t, 0, result.Iterations)
	assert.Contains(t, result.String(), "ERROR - test error")

	result = suite.Run("missing", 1)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "not found")
}

func TestSuiteRunAll(t *testing.T) {
	suite := NewSuite()
	suite.Add("a", func() error { return nil })
	suite.Add("b", func() error { return nil })

	results := suite.RunAll(2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.Equal(t, "b", results[1].Name)
	assert.Equal(t, results, suite.Results())

	var buf bytes.Buffer
	suite.PrintResults(&buf)
	assert.Contains(t, buf.String(), "a: 2 iterations")
}

func TestResult_ZeroIterations(t *testing.T) {
	assert.Equal(t, time.Duration(0), Result{Duration: time.Second}.Average())
}

func newFactory(engine *ocrtest.Engine) ExtractorFactory {
	return func(backend string) (*extract.Extractor, error) {
		r, err := pdf.NewRasterizer(backend)
		if err != nil {
			return nil, err
		}
		return extract.New(engine, extract.DefaultConfig(), extract.WithRasterizer(r)), nil
	}
}

func TestBackendComparison(t *testing.T) {
	dir := t.TempDir()
	deck := testutil.WriteFile(t, dir, "deck.pdf", testutil.MixedPDF())
	broken := testutil.WriteFile(t, dir, "broken.pdf", []byte("not a pdf"))

	cmp := NewBackendComparison(newFactory(&ocrtest.Engine{Text: "X"}), []string{"compose"})
	cmp.AddDocument(deck)
	cmp.AddDocument(broken)

	results, err := cmp.Run(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 5, results[0].Pages)
	assert.Equal(t, 2, results[0].PagesWithOCR)
	assert.InDelta(t, 1.0, results[0].Speedup, 1e-9)
	require.NoError(t, results[0].Result.Error)

	require.ErrorIs(t, results[1].Result.Error, pdf.ErrMalformedDocument)
	assert.Contains(t, results[1].String(), "ERROR")

	var buf bytes.Buffer
	cmp.PrintDetailedResults(&buf)
	assert.Contains(t, buf.String(), "deck.pdf [compose]")
	assert.Contains(t, buf.String(), "(1 failed)")

	buf.Reset()
	require.NoError(t, cmp.WriteCSV(&buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "backend", rows[0][1])
	assert.Equal(t, "5", rows[1][2])
}

func TestBackendComparison_Errors(t *testing.T) {
	_, err := NewBackendComparison(newFactory(&ocrtest.Engine{}), nil).Run(context.Background(), 1)
	require.Error(t, err)

	_, err = NewBackendComparison(newFactory(&ocrtest.Engine{}), []string{"compose"}).Run(context.Background(), 0)
	require.Error(t, err)

	_, err = NewBackendComparison(newFactory(&ocrtest.Engine{}), []string{"nope"}).Run(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend nope")
}

func TestPrintDetailedResults_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewBackendComparison(nil, nil).PrintDetailedResults(&buf)
	assert.Contains(t, buf.String(), "No benchmark results")
}
