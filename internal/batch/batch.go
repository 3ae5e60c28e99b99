// Package batch extracts text from many PDF files with a shared extractor.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/deckscan/internal/document"
)

// Extractor is the part of extract.Extractor a batch needs.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (*document.Result, error)
}

// ErrNoFiles is returned when discovery finds nothing to process.
var ErrNoFiles = errors.New("no PDF files found")

// Process discovers PDF files under paths and extracts each of them.
// Document failures are recorded on their item unless cfg.FailFast is set.
// Cancellation of ctx always fails the batch.
func Process(ctx context.Context, ex Extractor, paths []string, cfg Config) (*Result, error) {
	files, err := Discover(paths, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover PDF files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	start := time.Now()
	items := make([]Item, len(files))

	g, gctx := errgroup.WithContext(ctx)
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = 1
	}
	g.SetLimit(parallel)

	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := ex.ExtractFile(gctx, file)
			items[i] = Item{File: file, Result: res, err: err}
			if err != nil {
				items[i].Error = err.Error()
				if cfg.FailFast || errors.Is(err, context.Canceled) {
					return fmt.Errorf("%s: %w", file, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{Items: items, Duration: time.Since(start)}, nil
}
