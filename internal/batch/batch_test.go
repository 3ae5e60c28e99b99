package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/ocr/ocrtest"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
)

// stubExtractor returns canned results keyed by base name.
type stubExtractor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *stubExtractor) ExtractFile(_ context.Context, path string) (*document.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, filepath.Base(path))
	s.mu.Unlock()
	if err := s.fail[filepath.Base(path)]; err != nil {
		return nil, err
	}
	page := document.NewPage(1, "text of "+filepath.Base(path), document.MethodNative)
	return document.Build([]document.Page{page}, document.Meta{DocumentPages: 1}), nil
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.pdf", testutil.HelloWorldPDF())
	testutil.WriteFile(t, dir, "b.PDF", testutil.HelloWorldPDF())
	testutil.WriteFile(t, dir, "notes.txt", []byte("not a pdf"))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o750))
	testutil.WriteFile(t, sub, "c.pdf", testutil.HelloWorldPDF())
	return dir
}

func TestDiscover(t *testing.T) {
	dir := writeTree(t)

	tests := []struct {
		name      string
		paths     []string
		recursive bool
		include   []string
		exclude   []string
		want      []string
	}{
		{"flat", []string{dir}, false, nil, nil, []string{"a.pdf", "b.PDF"}},
		{"recursive", []string{dir}, true, nil, nil, []string{"a.pdf", "b.PDF", "sub/c.pdf"}},
		{"exclude", []string{dir}, true, nil, []string{"b.*"}, []string{"a.pdf", "sub/c.pdf"}},
		{"include", []string{dir}, true, []string{"c.pdf"}, nil, []string{"sub/c.pdf"}},
		{"explicit file ignores include", []string{filepath.Join(dir, "notes.txt")}, false, nil, nil, []string{"notes.txt"}},
		{"duplicates removed", []string{dir, filepath.Join(dir, "a.pdf")}, false, nil, nil, []string{"a.pdf", "b.PDF"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := Discover(tt.paths, tt.recursive, tt.include, tt.exclude)
			require.NoError(t, err)
			rel := make([]string, len(files))
			for i, f := range files {
				r, err := filepath.Rel(dir, f)
				require.NoError(t, err)
				rel[i] = filepath.ToSlash(r)
			}
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestDiscover_Missing(t *testing.T) {
	_, err := Discover([]string{"/nonexistent/deck.pdf"}, false, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestProcess_NoFiles(t *testing.T) {
	_, err := Process(context.Background(), &stubExtractor{}, []string{t.TempDir()}, Config{})
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestProcess_KeepsInputOrder(t *testing.T) {
	dir := writeTree(t)
	ex := &stubExtractor{}

	res, err := Process(context.Background(), ex, []string{dir}, Config{Recursive: true, Parallel: 3})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "a.pdf", filepath.Base(res.Items[0].File))
	assert.Equal(t, "b.PDF", filepath.Base(res.Items[1].File))
	assert.Equal(t, "c.pdf", filepath.Base(res.Items[2].File))
	assert.Equal(t, 0, res.Failed())
	assert.Len(t, ex.calls, 3)
}

func TestProcess_DocumentErrors(t *testing.T) {
	dir := writeTree(t)
	boom := errors.New("boom")

	t.Run("recorded", func(t *testing.T) {
		ex := &stubExtractor{fail: map[string]error{"a.pdf": boom}}
		res, err := Process(context.Background(), ex, []string{dir}, Config{Parallel: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed())
		require.ErrorIs(t, res.Items[0].Err(), boom)
		assert.Equal(t, "boom", res.Items[0].Error)
		assert.Nil(t, res.Items[0].Result)
		assert.NotNil(t, res.Items[1].Result)
	})

	t.Run("fail fast", func(t *testing.T) {
		ex := &stubExtractor{fail: map[string]error{"a.pdf": boom}}
		_, err := Process(context.Background(), ex, []string{dir}, Config{Parallel: 1, FailFast: true})
		require.ErrorIs(t, err, boom)
	})
}

func TestProcess_Cancelled(t *testing.T) {
	dir := writeTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Process(ctx, &stubExtractor{}, []string{dir}, Config{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcess_RealExtractor(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "deck.pdf", testutil.MixedPDF())
	testutil.WriteFile(t, dir, "broken.pdf", []byte("%PDF-1.4 garbage"))

	ex := extract.New(&ocrtest.Engine{Text: "SCANNED"}, extract.Config{Workers: 2})
	res, err := Process(context.Background(), ex, []string{dir}, Config{Parallel: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	assert.Equal(t, "broken.pdf", filepath.Base(res.Items[0].File))
	require.ErrorIs(t, res.Items[0].Err(), extract.ErrMalformedDocument)
	require.NotNil(t, res.Items[1].Result)
	assert.Equal(t, 2, res.Items[1].Result.Stats.PagesWithOCR)
}

func sampleResult() *Result {
	pages := []document.Page{
		document.NewPage(1, "Hello, \"world\"", document.MethodNative),
		{PageNumber: 2, Method: document.MethodNone, Error: "blank"},
	}
	return &Result{Items: []Item{{File: "one.pdf", Result: document.Build(pages, document.Meta{})}}}
}

func TestFormat_SingleDocument(t *testing.T) {
	r := sampleResult()

	text, err := Format(r, "text")
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nHello, \"world\"\n", text)

	js, err := Format(r, "json")
	require.NoError(t, err)
	var doc document.Result
	require.NoError(t, json.Unmarshal([]byte(js), &doc))
	assert.Equal(t, 2, doc.PageCount)

	ym, err := Format(r, "yaml")
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(ym), &generic))
	assert.Equal(t, 2, generic["pageCount"])
	assert.Contains(t, ym, "method: Native")
}

func TestFormat_CSV(t *testing.T) {
	r := sampleResult()
	r.Items = append(r.Items, Item{File: "bad.pdf", Error: "malformed", err: errors.New("malformed")})

	out, err := Format(r, "csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"file", "page", "method", "characters", "confidence", "error", "text"}, rows[0])
	assert.Equal(t, []string{"one.pdf", "1", "Native", "14", "0.000", "", "Hello, \"world\""}, rows[1])
	assert.Equal(t, "None", rows[2][2])
	assert.Equal(t, "blank", rows[2][5])
	assert.Equal(t, []string{"bad.pdf", "", "", "", "", "malformed", ""}, rows[3])
}

func TestFormat_MultipleDocuments(t *testing.T) {
	r := sampleResult()
	r.Items = append(r.Items, Item{File: "bad.pdf", Error: "malformed", err: errors.New("malformed")})

	text, err := Format(r, "text")
	require.NoError(t, err)
	assert.Equal(t, "# one.pdf\n--- Page 1 ---\nHello, \"world\"\n\n# bad.pdf\nerror: malformed\n", text)

	js, err := Format(r, "json")
	require.NoError(t, err)
	var decoded struct {
		Documents []struct {
			File  string `json:"file"`
			Error string `json:"error"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	require.Len(t, decoded.Documents, 2)
	assert.Equal(t, "malformed", decoded.Documents[1].Error)
}

func TestFormat_Unsupported(t *testing.T) {
	_, err := Format(sampleResult(), "xml")
	require.Error(t, err)
}

func TestResult_SaveResults(t *testing.T) {
	r := sampleResult()

	var buf strings.Builder
	require.NoError(t, r.SaveResults(&buf, "text", ""))
	assert.Contains(t, buf.String(), "Hello")

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, r.SaveResults(&buf, "json", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestResult_PrintStats(t *testing.T) {
	var buf strings.Builder
	sampleResult().PrintStats(&buf)
	assert.Contains(t, buf.String(), "Documents: 1")
	assert.Contains(t, buf.String(), "Pages without text: 1")
}
