package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/upload"
)

var (
	processDir         string
	processOut         string
	processUser        string
	processInMem       bool
	processConcurrency int
	processFrom        string
	processTo          string
	processProgress    bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process every invoice under a directory and export a review workbook",
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processDir, "dir", "", "directory to process invoices from (required)")
	processCmd.Flags().StringVar(&processOut, "out", "", "output XLSX path (default <parent of dir>/invoices.xlsx)")
	processCmd.Flags().StringVar(&processUser, "user", "local", "user id the invoices belong to")
	processCmd.Flags().BoolVar(&processInMem, "inmem", false, "use an in-memory SQLite database")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 4, "files processed in parallel")
	processCmd.Flags().StringVar(&processFrom, "from", "", "export from date YYYY-MM-DD")
	processCmd.Flags().StringVar(&processTo, "to", "", "export to date YYYY-MM-DD")
	processCmd.Flags().BoolVar(&processProgress, "progress", false, "show a progress bar on stderr")
	_ = processCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(processCmd)
}

type batchFile struct {
	path string
	src  entity.SourceFile
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	from, to, err := parseWindow(processFrom, processTo)
	if err != nil {
		return err
	}
	if processOut == "" {
		processOut = filepath.Join(filepath.Dir(filepath.Clean(processDir)), "invoices.xlsx")
	}

	db, err := app.OpenDB(ctx, cfg, processInMem, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close(logger)

	store, err := app.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	extractor, closeLLM, err := app.NewExtractor(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("extraction client: %w", err)
	}
	defer closeLLM()
	processor, invoices := app.NewProcessor(cfg, db, store, extractor, logger)

	files, skipped, err := collect(processDir, cfg.Pipeline.MaxFileBytes())
	if err != nil {
		return err
	}
	logger.Info("batch.collected", "dir", processDir, "files", len(files), "skipped", skipped)

	var bar *progress
	if processProgress {
		bar = newProgress(len(files), "processing")
	}
	start := time.Now()
	var processed, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, processConcurrency))
	for _, f := range files {
		g.Go(func() error {
			defer bar.Add()
			job := upload.NewJob(processUser, f.src)
			inv, err := processor.Process(gctx, job)
			if err != nil {
				failed.Add(1)
				logger.Error("batch.file_failed", "path", f.path, "job_id", job.ID(), "error", err)
				return nil
			}
			processed.Add(1)
			logger.Info("batch.file_ok", "path", f.path, "invoice_id", inv.ID, "needs_review", inv.NeedsReview)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bar.Finish()

	res, err := export.NewService(invoices, logger).ExportXLSX(ctx, processUser, export.Filter{From: from, To: to})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.WriteFile(processOut, res.XLSX, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", processOut, err)
	}

	logger.Info("batch.done",
		"files", len(files),
		"processed", processed.Load(),
		"failed", failed.Load(),
		"rows", res.Rows,
		"needs_review", res.NeedsReview,
		"output", processOut,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d, failed %d, %d need review -> %s\n",
		processed.Load(), failed.Load(), res.NeedsReview, processOut)
	return nil
}

// collect loads every supported file under root, skipping hidden entries and byte-identical copies.
func collect(root string, maxBytes int64) ([]batchFile, int, error) {
	var (
		out     []batchFile
		skipped int
		seen    = map[string]string{}
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && ingest.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !ingest.AllowedExt(filepath.Ext(path)) {
			return nil
		}
		src, err := ingest.LoadFile(path, maxBytes)
		if err != nil {
			skipped++
			logger.Warn("batch.skip", "path", path, "error", err)
			return nil
		}
		if first, dup := seen[src.SHA256]; dup {
			skipped++
			logger.Info("batch.duplicate", "path", path, "same_as", first)
			return nil
		}
		seen[src.SHA256] = path
		out = append(out, batchFile{path: path, src: src})
		return nil
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, skipped, nil
}

func parseWindow(fromStr, toStr string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from date, use YYYY-MM-DD: %w", err)
		}
		from = &t
	}
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to date, use YYYY-MM-DD: %w", err)
		}
		to = &t
	}
	return from, to, nil
}
