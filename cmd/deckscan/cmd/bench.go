package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/deckscan/internal/batch"
	"github.com/MeKo-Tech/deckscan/internal/benchmark"
	"github.com/MeKo-Tech/deckscan/internal/extract"
	"github.com/MeKo-Tech/deckscan/internal/pdf"
)

var benchCmd = &cobra.Command{
	Use:   "bench [pdf files or directories...]",
	Short: "Benchmark extraction with each rasterizer backend",
	Long: `Extract the given documents repeatedly with every rasterizer backend and
report timing, allocation and the speedup relative to the first backend.

Examples:
  deckscan bench deck.pdf
  deckscan bench ./decks --iterations 5 --backends compose,mupdf --csv results.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().Int("iterations", 3, "number of extractions per document and backend")
	benchCmd.Flags().StringSlice("backends", nil, "backends to compare, first is the baseline (default all registered)")
	benchCmd.Flags().String("csv", "", "also write results as CSV to this file")
	addExtractionFlags(benchCmd.Flags())
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := applyExtractionFlags(cmd, cfg); err != nil {
		return err
	}
	iterations, _ := cmd.Flags().GetInt("iterations")
	backends, _ := cmd.Flags().GetStringSlice("backends")
	csvFile, _ := cmd.Flags().GetString("csv")
	if len(backends) == 0 {
		backends = pdf.Rasterizers()
	}

	files, err := batch.Discover(args, true, batch.DefaultIncludePatterns, nil)
	if err != nil {
		return err
	}

	factory := func(backend string) (*extract.Extractor, error) {
		c := *cfg
		c.Render.Backend = backend
		return newExtractor(&c)
	}
	cmp := benchmark.NewBackendComparison(factory, backends)
	for _, f := range files {
		cmp.AddDocument(f)
	}

	ctx := commandContext(cmd)
	if _, err := cmp.Run(ctx, iterations); err != nil {
		return err
	}
	cmp.PrintDetailedResults(cmd.OutOrStdout())

	if csvFile != "" {
		f, err := os.Create(csvFile) //nolint:gosec // G304: user chosen output path
		if err != nil {
			return fmt.Errorf("creating %s: %w", csvFile, err)
		}
		defer func() { _ = f.Close() }()
		if err := cmp.WriteCSV(f); err != nil {
			return fmt.Errorf("writing %s: %w", csvFile, err)
		}
	}
	return nil
}
