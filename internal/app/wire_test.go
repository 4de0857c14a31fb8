package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/rasterize"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProcessorOptions(t *testing.T) {
	opts := ProcessorOptions(common.PipelineConfig{
		MaxFileMB:       5,
		TargetImageKB:   512,
		MaxImageWidth:   1600,
		MaxImageHeight:  1200,
		RasterScale:     1.5,
		RasterMaxPages:  2,
		RasterMode:      "long",
		DefaultCurrency: "NZD",
	})
	assert.Equal(t, int64(5*1024*1024), opts.MaxFileBytes)
	assert.Equal(t, rasterize.ModeLongImage, opts.Raster.Mode)
	assert.Equal(t, 1.5, opts.Raster.Scale)
	assert.Equal(t, 2, opts.Raster.MaxPages)
	assert.Equal(t, 512*1024, opts.Compress.TargetBytes)
	assert.Equal(t, 1600, opts.Compress.MaxWidth)
	assert.Equal(t, "NZD", opts.DefaultCurrency)

	opts = ProcessorOptions(common.PipelineConfig{RasterMode: "sideways"})
	assert.Equal(t, rasterize.ModeSinglePage, opts.Raster.Mode)
	assert.Equal(t, rasterize.DefaultScale, opts.Raster.Scale)
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), common.StorageConfig{Backend: "fs", Dir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, store)

	_, err = NewStore(context.Background(), common.StorageConfig{Backend: "ftp"}, testLogger())
	assert.True(t, common.IsCode(err, common.CodeConfigError))
}

func TestNewExtractor_RequiresKey(t *testing.T) {
	cfg := &common.Config{LLM: common.LLMConfig{Provider: "openai", MaxAttempts: 3}}
	_, _, err := NewExtractor(context.Background(), cfg, testLogger())
	assert.True(t, common.IsCode(err, common.CodeConfigError))

	cfg.LLM.OpenAIKey = "sk-test"
	c, closeFn, err := NewExtractor(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer closeFn()
	assert.NotEmpty(t, c.ProviderName())
}

func TestOpenDB_InMemory(t *testing.T) {
	db, err := OpenDB(context.Background(), &common.Config{}, true, testLogger())
	require.NoError(t, err)
	defer db.Close(testLogger())

	proc, invoices := NewProcessor(&common.Config{}, db, nil, nil, testLogger())
	assert.NotNil(t, proc)
	got, err := invoices.Suppliers(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOpenDB_RequiresDSN(t *testing.T) {
	_, err := OpenDB(context.Background(), &common.Config{}, false, testLogger())
	assert.True(t, common.IsCode(err, common.CodeConfigError))
}
