package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/compress"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/llm"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
	"github.com/joseph-ayodele/invoice-pipeline/internal/validation"
)

var pagesCmd = &cobra.Command{
	Use:   "pages <file.pdf>",
	Short: "Print the page count of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := ingest.LoadFile(args[0], cfg.Pipeline.MaxFileBytes())
		if err != nil {
			return err
		}
		n, err := rasterize.NewRasterizer(nil, logger).PageCount(src.Data)
		if err != nil {
			return fmt.Errorf("count pages: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract one invoice and print the fields and validation as JSON",
	Long: `extract rasterizes and compresses a single file, sends it to the configured
model and runs validation. Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(pagesCmd, extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := app.ProcessorOptions(cfg.Pipeline)

	src, err := ingest.LoadFile(args[0], opts.MaxFileBytes)
	if err != nil {
		return err
	}
	raster := rasterize.NewRasterizer(nil, logger).Convert(ctx, src.Data, src.MIMEType, opts.Raster)
	img := raster.First()
	if img == nil {
		return errors.New("rasterize: " + raster.Error)
	}

	data, mimeType := img.Data, img.MIMEType
	var stats *compress.Stats
	if c, err := compress.NewCompressor(logger).Compress(ctx, img.Data, img.MIMEType, opts.Compress); err != nil {
		logger.Warn("extract.compress_skipped", "error", err)
	} else {
		data, mimeType, stats = c.Data, c.MIMEType, &c.Stats
	}

	extractor, closeLLM, err := app.NewExtractor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLLM()

	stop := startSpinner(cmd.ErrOrStderr(), "extracting "+src.Name)
	fields, _, err := extractor.Extract(ctx, llm.ExtractRequest{
		Images:          []llm.Image{{Data: data, MIMEType: mimeType}},
		FileName:        src.Name,
		PageCount:       raster.PageCount,
		DefaultCurrency: opts.DefaultCurrency,
	})
	stop()
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	vcfg := validation.DefaultConfig()
	vcfg.DefaultCurrency = opts.DefaultCurrency

	out := map[string]any{
		"file":        src.Name,
		"sha256":      src.SHA256,
		"pages":       raster.PageCount,
		"provider":    extractor.ProviderName(),
		"compression": stats,
		"data":        fields,
		"validation":  validation.NewEngine(vcfg).Validate(fields),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
