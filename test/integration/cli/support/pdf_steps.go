package support

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/deckscan/internal/testutil"
)

// writePDF stores a generated document in the scenario temp directory.
func (testCtx *TestContext) writePDF(name string, data []byte) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	testCtx.TrackFile(path)
	return nil
}

// aTextPDFWithPages creates a document with one text page per comma
// separated entry.
func (testCtx *TestContext) aTextPDFWithPages(name, pages string) error {
	b := testutil.NewPDFBuilder()
	for _, text := range strings.Split(pages, ",") {
		b.AddTextPage(strings.TrimSpace(text))
	}
	return testCtx.writePDF(name, b.Bytes())
}

func (testCtx *TestContext) aScannedPDFShowing(name, text string) error {
	return testCtx.writePDF(name, testutil.ScannedPDF(text))
}

func (testCtx *TestContext) aMixedPitchDeck(name string) error {
	return testCtx.writePDF(name, testutil.MixedPDF())
}

func (testCtx *TestContext) anEncryptedPDFWithPassword(name, password string) error {
	data, err := testutil.Encrypt(testutil.HelloWorldPDF(), password, password+"-owner")
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", name, err)
	}
	return testCtx.writePDF(name, data)
}

func (testCtx *TestContext) aFileWithContent(name, content string) error {
	return testCtx.writePDF(name, []byte(content))
}

// aDirectoryWithDocuments creates a directory holding the given documents,
// each a single text page naming its file.
func (testCtx *TestContext) aDirectoryWithDocuments(dir string, table *godog.Table) error {
	testCtx.TrackDirectory(testCtx.Path(dir))
	for _, row := range table.Rows[1:] {
		name := row.Cells[0].Value
		text := row.Cells[1].Value
		data := testutil.NewPDFBuilder().AddTextPage(text).Bytes()
		if text == "-" {
			data = []byte("not a pdf")
		}
		if err := testCtx.writePDF(filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPDFSteps registers the document fixture steps.
func (testCtx *TestContext) RegisterPDFSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a PDF "([^"]*)" with text pages "([^"]*)"$`, testCtx.aTextPDFWithPages)
	sc.Step(`^a scanned PDF "([^"]*)" showing "([^"]*)"$`, testCtx.aScannedPDFShowing)
	sc.Step(`^a mixed pitch deck "([^"]*)"$`, testCtx.aMixedPitchDeck)
	sc.Step(`^an encrypted PDF "([^"]*)" with password "([^"]*)"$`, testCtx.anEncryptedPDFWithPassword)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileWithContent)
	sc.Step(`^a directory "([^"]*)" with documents:$`, testCtx.aDirectoryWithDocuments)
}
