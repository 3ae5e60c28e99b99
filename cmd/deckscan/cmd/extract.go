package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/deckscan/internal/batch"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

// extractCmd represents the extract command.
var extractCmd = &cobra.Command{
	Use:   "extract [flags] <pdf|dir>...",
	Short: "Extract text from PDF files",
	Long: `Extract the text of every page of one or more PDF files.

Directories are searched for *.pdf files (use --recursive to descend).
Single documents print their page delimited text; json, yaml and csv
formats include per page methods, character counts and OCR confidence.

Examples:
  deckscan extract deck.pdf
  deckscan extract deck.pdf --format json
  deckscan extract locked.pdf --password secret
  deckscan extract ./decks --recursive --format csv --output pages.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	f := extractCmd.Flags()
	f.StringP("format", "f", "text", "output format (text, json, yaml, csv)")
	f.StringP("output", "o", "", "write output to file instead of stdout")
	f.String("password", "", "user password for encrypted PDFs")
	f.String("owner-password", "", "owner password for encrypted PDFs")
	f.BoolP("recursive", "r", false, "search directories recursively")
	f.StringSlice("include", nil, "file name patterns to include from directories (default *.pdf)")
	f.StringSlice("exclude", nil, "file name patterns to exclude")
	f.Int("parallel", 1, "documents processed concurrently")
	f.Bool("fail-fast", false, "stop at the first document that cannot be extracted")
	f.Bool("progress", false, "report per page progress on stderr")
	f.Bool("stats", false, "print processing statistics on stderr")
	addExtractionFlags(f)
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("output") {
		cfg.Output.File, _ = f.GetString("output")
	}
	if err := applyExtractionFlags(cmd, cfg); err != nil {
		return err
	}

	var opts []extract.Option
	if show, _ := f.GetBool("progress"); show {
		errOut := cmd.ErrOrStderr()
		opts = append(opts, extract.WithProgress(func(p extract.Progress) {
			_, _ = fmt.Fprintf(errOut, "page %d/%d done (%s, %d of %d complete)\n",
				p.Page, p.Total, p.Method, p.Completed, p.Total)
		}))
	}

	ex, err := newExtractor(cfg, opts...)
	if err != nil {
		return err
	}
	password, _ := f.GetString("password")
	ownerPassword, _ := f.GetString("owner-password")
	if password != "" || ownerPassword != "" {
		ex = ex.With(func(c *extract.Config) {
			c.Credentials = pdf.Credentials{UserPassword: password, OwnerPassword: ownerPassword}
		})
	}

	bcfg := batch.Config{}
	bcfg.Recursive, _ = f.GetBool("recursive")
	bcfg.IncludePatterns, _ = f.GetStringSlice("include")
	bcfg.ExcludePatterns, _ = f.GetStringSlice("exclude")
	bcfg.Parallel, _ = f.GetInt("parallel")
	bcfg.FailFast, _ = f.GetBool("fail-fast")

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := batch.Process(ctx, ex, args, bcfg)
	if err != nil {
		return err
	}

	if len(res.Items) == 1 && res.Items[0].Err() != nil {
		return fmt.Errorf("%s: %w", res.Items[0].File, res.Items[0].Err())
	}

	if err := res.SaveResults(cmd.OutOrStdout(), cfg.Output.Format, cfg.Output.File); err != nil {
		return err
	}
	if cfg.Output.File != "" {
		logger.Info("results written", "file", cfg.Output.File, "documents", len(res.Items))
	}
	if stats, _ := f.GetBool("stats"); stats {
		res.PrintStats(cmd.ErrOrStderr())
	}

	if failed := res.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d documents could not be extracted", failed, len(res.Items))
	}
	return nil
}

// commandContext returns the command context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
