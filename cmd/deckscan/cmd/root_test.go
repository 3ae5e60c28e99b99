package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/deckscan/internal/config"
	"github.com/MeKo-Tech/deckscan/internal/document"
	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/ocr/ocrtest"
	"github.com/MeKo-Tech/deckscan/internal/testutil"
)

// resetFlags restores every flag of the command tree so that values parsed
// by an earlier Execute do not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command with args against a fake OCR engine and
// returns stdout and stderr.
func run(t *testing.T, engine *ocrtest.Engine, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if engine == nil {
		engine = &ocrtest.Engine{Text: "SCANNED", Confidence: 0.9}
	}
	oldEngine := newEngine
	newEngine = func(*config.Config) ocr.Engine { return engine }
	t.Cleanup(func() {
		newEngine = oldEngine
		globalConfig = nil
		cfgFile = ""
		resetFlags(rootCmd)
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "deckscan", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"extract", "serve", "mcp", "check", "config", "version", "bench"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := run(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "extract")
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "deckscan version")
}

func TestExtract_NativeText(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "hello.pdf", testutil.HelloWorldPDF())
	engine := &ocrtest.Engine{}

	out, _, err := run(t, engine, "extract", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "--- Page 1 ---\n"))
	assert.Contains(t, out, "Hello World")
	assert.Equal(t, 0, engine.Sessions())
}

func TestExtract_JSONWithOCR(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "deck.pdf", testutil.MixedPDF())

	out, _, err := run(t, nil, "extract", path, "--format", "json", "--workers", "2")
	require.NoError(t, err)

	var res document.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 5, res.PageCount)
	assert.Equal(t, document.MethodOCR, res.Pages[1].Method)
	assert.Equal(t, "SCANNED", res.Pages[1].Text)
	require.NoError(t, res.Validate())
}

func TestExtract_LanguageAndMaxPages(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "deck.pdf", testutil.MixedPDF())
	engine := &ocrtest.Engine{Text: "X"}

	out, _, err := run(t, engine, "extract", path, "-f", "json", "-l", "de", "--max-pages", "2")
	require.NoError(t, err)

	var res document.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.PageCount)
	assert.True(t, res.Truncated)
	assert.Equal(t, []string{"deu"}, engine.Languages())
}

func TestExtract_OutputFileAndCSV(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "deck.pdf", testutil.MixedPDF())
	outFile := filepath.Join(dir, "pages.csv")

	out, _, err := run(t, nil, "extract", path, "--format", "csv", "--output", outFile)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestExtract_Directory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.pdf", testutil.HelloWorldPDF())
	testutil.WriteFile(t, dir, "b.pdf", testutil.NewPDFBuilder().AddTextPage("Second").Bytes())

	out, stderr, err := run(t, nil, "extract", dir, "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "# "+filepath.Join(dir, "a.pdf"))
	assert.Contains(t, out, "Second")
	assert.Contains(t, stderr, "Documents: 2")
}

func TestExtract_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := testutil.WriteFile(t, dir, "bad.pdf", []byte("not a pdf"))
	locked := testutil.WriteFile(t, dir, "locked.pdf",
		testutil.EncryptPDF(t, testutil.HelloWorldPDF(), "user", "owner"))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no args", []string{"extract"}, "requires at least 1 arg"},
		{"missing file", []string{"extract", filepath.Join(dir, "absent.pdf")}, "cannot access"},
		{"malformed", []string{"extract", bad}, "malformed"},
		{"password required", []string{"extract", locked}, "password"},
		{"bad format", []string{"extract", bad, "--format", "xml"}, "invalid output format"},
		{"bad scale", []string{"extract", bad, "--scale", "50"}, "scale"},
		{"bad backend", []string{"extract", bad, "--backend", "nope"}, "unknown render backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, nil, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtract_Password(t *testing.T) {
	locked := testutil.WriteFile(t, t.TempDir(), "locked.pdf",
		testutil.EncryptPDF(t, testutil.HelloWorldPDF(), "user", "owner"))

	out, _, err := run(t, nil, "extract", locked, "--password", "user")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello World")
}

func TestExtract_PartialBatchFailure(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "a.pdf", testutil.HelloWorldPDF())
	testutil.WriteFile(t, dir, "b.pdf", []byte("%PDF-1.4 broken"))

	out, _, err := run(t, nil, "extract", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 documents")
	assert.Contains(t, out, "Hello World")
	assert.Contains(t, out, "error:")
}

func TestExtract_Progress(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "deck.pdf", testutil.MixedPDF())

	_, stderr, err := run(t, nil, "extract", path, "--progress")
	require.NoError(t, err)
	assert.Contains(t, stderr, "5 of 5 complete")
}

func TestExtract_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "deck.pdf", testutil.MixedPDF())
	cfgPath := testutil.WriteFile(t, dir, "deckscan.yaml", []byte("output:\n  format: yaml\nextract:\n  max_pages: 1\n"))

	out, _, err := run(t, nil, "--config", cfgPath, "extract", path)
	require.NoError(t, err)
	assert.Contains(t, out, "pageCount: 1")
	assert.Contains(t, out, "truncated: true")
}

func TestCheckCommand(t *testing.T) {
	out, _, err := run(t, nil, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "compose")
	assert.Contains(t, out, "OCR engine: fake")
	assert.Contains(t, out, `Session for "eng": OK`)

	_, _, err = run(t, &ocrtest.Engine{FailInit: true}, "check")
	require.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "generated.yaml")
	out, _, err := run(t, nil, "config", "init", file)
	require.NoError(t, err)
	assert.Contains(t, out, file)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "language: eng")

	out, _, err = run(t, nil, "--config", file, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# loaded from "+file)
	assert.Contains(t, out, "log_level: info")
}

func TestMCPCommand(t *testing.T) {
	rootCmd.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, _, err := run(t, nil, "mcp")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":1`)
}

func TestBenchCommand(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "deck.pdf", testutil.MixedPDF())
	csvFile := filepath.Join(dir, "bench.csv")

	out, _, err := run(t, nil, "bench", path, "--iterations", "1", "--backends", "compose", "--csv", csvFile)
	require.NoError(t, err)
	assert.Contains(t, out, "deck.pdf [compose]: 5 pages (2 OCR)")

	data, err := os.ReadFile(csvFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "document,backend")

	_, _, err = run(t, nil, "bench", path, "--backends", "nope")
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"
	l := newLogger(&buf, &cfg)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	cfg.Verbose = true
	newLogger(&buf, &cfg).Debug("debug")
	assert.Contains(t, buf.String(), "debug")
}
