// Package compress re-encodes raster images to fit a byte budget.
package compress

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"math"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/imaging"
)

const (
	// SmallTargetThreshold is the budget below which dimensions are pre-shrunk.
	SmallTargetThreshold = 500 * 1024

	DefaultInitialQuality = 0.8
	DefaultQualityStep    = 0.8
	DefaultMinQuality     = 0.1
	DefaultMaxAttempts    = 5
)

type Options struct {
	TargetBytes    int
	MaxWidth       int
	MaxHeight      int
	InitialQuality float64
	QualityStep    float64
	MinQuality     float64
	MaxAttempts    int
}

func (o Options) withDefaults() Options {
	if o.InitialQuality <= 0 || o.InitialQuality > 1 {
		o.InitialQuality = DefaultInitialQuality
	}
	if o.QualityStep <= 0 || o.QualityStep >= 1 {
		o.QualityStep = DefaultQualityStep
	}
	if o.MinQuality <= 0 || o.MinQuality > o.InitialQuality {
		o.MinQuality = DefaultMinQuality
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

type Stats struct {
	OriginalSize     int     `json:"original_size"`
	CompressedSize   int     `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	Attempts         int     `json:"attempts"`
	FinalQuality     float64 `json:"final_quality"`
}

type Result struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
	Stats    Stats
}

type Compressor struct {
	logger *slog.Logger
}

func NewCompressor(logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{logger: logger}
}

// TargetDimensions fits w x h within the bounds and, for small budgets, shrinks further by
// sqrt(target/threshold).
func TargetDimensions(w, h int, opts Options) (int, int) {
	w, h = imaging.Fit(w, h, opts.MaxWidth, opts.MaxHeight)
	if opts.TargetBytes > 0 && opts.TargetBytes < SmallTargetThreshold {
		factor := math.Sqrt(float64(opts.TargetBytes) / float64(SmallTargetThreshold))
		w, h = imaging.Scale(w, h, factor)
	}
	return w, h
}

// Compress encodes data as JPEG, lowering quality until TargetBytes is met or attempts run out.
// Running out of attempts is not an error: the smallest encoding is returned.
func (c *Compressor) Compress(ctx context.Context, data []byte, mimeType string, opts Options) (Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	src, format, err := imaging.Decode(data)
	if err != nil {
		return Result{}, common.NewAppError(common.CodeImageCompressionFailed, "The image could not be read for compression.", err)
	}
	b := src.Bounds()
	fitW, fitH := imaging.Fit(b.Dx(), b.Dy(), opts.MaxWidth, opts.MaxHeight)
	// Source already within budget and bounds: one pass, no pre-shrink.
	fits := opts.TargetBytes > 0 && len(data) <= opts.TargetBytes && fitW == b.Dx() && fitH == b.Dy()
	w, h := fitW, fitH
	if !fits {
		w, h = TargetDimensions(b.Dx(), b.Dy(), opts)
	}
	resized := w != b.Dx() || h != b.Dy()
	img := flatten(imaging.Resize(src, w, h))

	var (
		best    []byte
		quality = opts.InitialQuality
		used    float64
		tries   int
	)
	for tries < opts.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return Result{}, common.Aborted(err)
		}
		tries++
		out, err := encodeJPEG(img, quality)
		if err != nil {
			return Result{}, common.NewAppError(common.CodeImageCompressionFailed, "The image could not be compressed.", err)
		}
		if best == nil || len(out) <= len(best) {
			best, used = out, quality
		}
		if fits || opts.TargetBytes <= 0 || len(out) <= opts.TargetBytes {
			break
		}
		c.logger.Debug("compress.retry", "attempt", tries, "quality", quality, "size", len(out), "target", opts.TargetBytes)
		quality = math.Max(quality*opts.QualityStep, opts.MinQuality)
	}

	res := Result{Data: best, MIMEType: constants.MIMETypeJPEG, Width: w, Height: h}
	// Re-encoding an image that already fits can grow it; keep the source then.
	if !resized && len(best) >= len(data) && (opts.TargetBytes <= 0 || len(data) <= opts.TargetBytes) {
		res.Data = data
		res.MIMEType = mimeFromFormat(format, mimeType)
	}
	res.Stats = Stats{
		OriginalSize:     len(data),
		CompressedSize:   len(res.Data),
		CompressionRatio: ratio(len(data), len(res.Data)),
		Attempts:         tries,
		FinalQuality:     round2(used),
	}

	c.logger.Info("compress.ok",
		"original_size", res.Stats.OriginalSize,
		"compressed_size", res.Stats.CompressedSize,
		"attempts", res.Stats.Attempts,
		"final_quality", res.Stats.FinalQuality,
		"width", w, "height", h,
		"target_met", opts.TargetBytes <= 0 || res.Stats.CompressedSize <= opts.TargetBytes,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func encodeJPEG(img image.Image, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	q := int(math.Round(quality * 100))
	q = min(max(q, 1), 100)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// flatten composites transparent images onto white so JPEG output has no black fill.
func flatten(src image.Image) image.Image {
	if _, ok := src.(*image.YCbCr); ok {
		return src
	}
	if _, ok := src.(*image.Gray); ok {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func mimeFromFormat(format, fallback string) string {
	switch format {
	case "jpeg":
		return constants.MIMETypeJPEG
	case "png":
		return constants.MIMETypePNG
	case "gif":
		return constants.MIMETypeGIF
	case "webp":
		return constants.MIMETypeWebP
	}
	return fallback
}

func ratio(original, compressed int) float64 {
	if compressed == 0 {
		return 0
	}
	return round2(float64(original) / float64(compressed))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
