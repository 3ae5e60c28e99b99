package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/deckscan/internal/ocr"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check OCR engine setup and installed languages",
	Long: `Verify that the OCR engine starts for the configured language and list
the installed language data and page rasterizer backends.

The command fails when no OCR session can be started, which means scanned
pages would be reported without text.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()
		if err := applyExtractionFlags(cmd, cfg); err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		_, _ = fmt.Fprintf(out, "Rasterizer backends: %s\n", strings.Join(pdf.Rasterizers(), ", "))

		engine := newEngine(cfg)
		_, _ = fmt.Fprintf(out, "OCR engine: %s\n", engine.Name())
		if lister, ok := engine.(interface{ AvailableLanguages() ([]string, error) }); ok {
			if langs, err := lister.AvailableLanguages(); err == nil {
				_, _ = fmt.Fprintf(out, "Installed languages: %s\n", strings.Join(langs, ", "))
			}
		}

		lang, err := ocr.NormalizeLanguage(cfg.OCR.Language)
		if err != nil {
			return err
		}
		session, err := engine.NewSession(lang)
		if err != nil {
			_, _ = fmt.Fprintf(out, "Session for %q: FAILED\n", lang)
			return fmt.Errorf("OCR engine unavailable: %w", err)
		}
		if session == nil {
			return errors.New("OCR engine returned no session")
		}
		_ = session.Close()
		_, _ = fmt.Fprintf(out, "Session for %q: OK\n", lang)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addExtractionFlags(checkCmd.Flags())
}
