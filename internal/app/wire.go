// Package app assembles the pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-pipeline/internal/anomaly"
	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/compress"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
	"github.com/joseph-ayodele/invoice-pipeline/internal/storage"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validation"
)

// OpenDB opens Postgres from cfg, or an in-memory SQLite database when inmem is set,
// and applies migrations.
func OpenDB(ctx context.Context, cfg *common.Config, inmem bool, logger *slog.Logger) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	if inmem {
		db, err = repository.OpenSQLite(ctx, "file::memory:", logger)
	} else {
		if cfg.Database.DSN == "" {
			return nil, common.NewAppError(common.CodeConfigError, "DB_URL is required", common.ErrInvalidInput)
		}
		db, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db, logger); err != nil {
		db.Close(logger)
		return nil, err
	}
	return db, nil
}

// NewStore builds the configured object store.
func NewStore(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "fs":
		return storage.NewFileStore(cfg.Dir, logger)
	case "s3", "":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}, logger)
	}
	return nil, common.NewAppError(common.CodeConfigError, "STORAGE_BACKEND must be s3 or fs", common.ErrInvalidInput)
}

// NewExtractor builds the retrying extraction client over the configured provider.
// The returned close func releases provider resources.
func NewExtractor(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*llm.Client, func(), error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, nil, err
	}
	var (
		provider llm.Provider
		closeFn  = func() {}
	)
	switch cfg.LLM.Provider {
	case "gemini":
		g, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.LLM.GeminiKey,
			Model:       cfg.LLM.GeminiModel,
			Temperature: cfg.LLM.Temperature,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		provider = g
		closeFn = func() {
			if err := g.Close(); err != nil {
				logger.Warn("llm.gemini.close_failed", "error", err)
			}
		}
	default:
		provider = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAIKey,
			BaseURL:     cfg.LLM.OpenAIURL,
			Model:       cfg.LLM.OpenAIModel,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	}
	client := llm.NewClient(provider, llm.Config{
		MaxAttempts:     cfg.LLM.MaxAttempts,
		RetryDelay:      cfg.LLM.RetryDelay,
		DefaultCurrency: cfg.Pipeline.DefaultCurrency,
		Lenient:         cfg.LLM.LenientInput,
	}, logger)
	return client, closeFn, nil
}

// ProcessorOptions maps pipeline tuning onto stage options.
func ProcessorOptions(p common.PipelineConfig) pipeline.Options {
	raster := rasterize.DefaultOptions()
	raster.Mode = rasterize.Mode(p.RasterMode)
	switch raster.Mode {
	case rasterize.ModeSinglePage, rasterize.ModeMultiPage, rasterize.ModeLongImage:
	default:
		raster.Mode = rasterize.ModeSinglePage
	}
	if p.RasterScale > 0 {
		raster.Scale = p.RasterScale
	}
	if p.RasterMaxPages > 0 {
		raster.MaxPages = p.RasterMaxPages
	}
	return pipeline.Options{
		MaxFileBytes: p.MaxFileBytes(),
		Raster:       raster,
		Compress: compress.Options{
			TargetBytes: p.TargetImageKB * 1024,
			MaxWidth:    p.MaxImageWidth,
			MaxHeight:   p.MaxImageHeight,
		},
		DefaultCurrency: p.DefaultCurrency,
	}
}

// NewProcessor wires every stage around the given store, extractor and database.
func NewProcessor(cfg *common.Config, db *repository.DB, store storage.ObjectStore, extractor llm.InvoiceExtractor, logger *slog.Logger) (*pipeline.Processor, repository.InvoiceRepository) {
	invoices := repository.NewInvoiceRepository(db, logger)
	vcfg := validation.DefaultConfig()
	vcfg.DefaultCurrency = cfg.Pipeline.DefaultCurrency

	proc := pipeline.NewProcessor(pipeline.Deps{
		Rasterizer: rasterize.NewRasterizer(nil, logger),
		Compressor: compress.NewCompressor(logger),
		Store:      store,
		Extractor:  extractor,
		Validator:  validation.NewEngine(vcfg),
		Detector:   anomaly.NewDetector(invoices, anomaly.DefaultConfig(), logger),
		Suggester:  category.NewSuggester(logger),
		Invoices:   invoices,
	}, ProcessorOptions(cfg.Pipeline), logger)
	return proc, invoices
}
