// Package rasterize turns PDFs into raster images for the vision model.
package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/imaging"
)

type Mode string

const (
	ModeSinglePage Mode = "single"
	ModeMultiPage  Mode = "multi"
	ModeLongImage  Mode = "long"
)

const (
	DefaultScale           = 2.0
	DefaultMaxWidth        = 2048
	DefaultMaxHeight       = 2048
	DefaultMaxPages        = 3
	DefaultSeparatorHeight = 4
	DefaultSpacing         = 16
	baseDPI                = 72.0
)

type Options struct {
	Mode      Mode
	Scale     float64
	MaxWidth  int
	MaxHeight int

	// Page is the 1-based page rendered in single-page mode.
	Page int
	// MaxPages caps multi-page and long-image output.
	MaxPages int

	SeparatorHeight int
	SeparatorColor  color.Color
	Spacing         int
	Background      color.Color
}

// DefaultOptions renders the first page at 2x.
func DefaultOptions() Options {
	return Options{
		Mode:            ModeSinglePage,
		Scale:           DefaultScale,
		MaxWidth:        DefaultMaxWidth,
		MaxHeight:       DefaultMaxHeight,
		Page:            1,
		MaxPages:        DefaultMaxPages,
		SeparatorHeight: DefaultSeparatorHeight,
		SeparatorColor:  color.Gray{Y: 0xcc},
		Spacing:         DefaultSpacing,
		Background:      color.White,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.Scale <= 0 {
		o.Scale = d.Scale
	}
	if o.Page <= 0 {
		o.Page = d.Page
	}
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.SeparatorHeight < 0 {
		o.SeparatorHeight = 0
	}
	if o.SeparatorColor == nil {
		o.SeparatorColor = d.SeparatorColor
	}
	if o.Spacing < 0 {
		o.Spacing = 0
	}
	if o.Background == nil {
		o.Background = d.Background
	}
	return o
}

// Result reports a conversion. Callers must check Success before reading Images.
type Result struct {
	Success     bool
	Error       string
	Images      []entity.ImageArtifact
	PageCount   int
	PassThrough bool
}

// First returns the first produced image, or nil.
func (r Result) First() *entity.ImageArtifact {
	if !r.Success || len(r.Images) == 0 {
		return nil
	}
	return &r.Images[0]
}

type Rasterizer struct {
	renderer PageRenderer
	logger   *slog.Logger
}

func NewRasterizer(renderer PageRenderer, logger *slog.Logger) *Rasterizer {
	if renderer == nil {
		renderer = FitzRenderer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{renderer: renderer, logger: logger}
}

// PageCount returns the number of pages in a PDF.
func (r *Rasterizer) PageCount(data []byte) (int, error) {
	return CountPages(data)
}

// Convert renders data according to opts. Raster images pass through untouched.
// It never returns an error; failures come back as Result{Success: false}.
func (r *Rasterizer) Convert(ctx context.Context, data []byte, mimeType string, opts Options) (res Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("rasterize.panic", "panic", p)
			res = failure(fmt.Sprintf("pdf rendering panicked: %v", p))
		}
	}()

	if constants.IsRaster(mimeType) {
		return r.passThrough(data, mimeType)
	}
	if !constants.IsPDF(mimeType) {
		return failure(fmt.Sprintf("unsupported document type %q", mimeType))
	}

	opts = opts.withDefaults()
	doc, err := r.renderer.Open(data)
	if err != nil {
		r.logger.Warn("rasterize.open_failed", "error", err)
		return failure(err.Error())
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			r.logger.Warn("rasterize.close_failed", "error", cerr)
		}
	}()

	total := doc.NumPage()
	if total <= 0 {
		return failure("pdf has no pages")
	}

	pages, err := selectPages(opts, total)
	if err != nil {
		return failure(err.Error())
	}

	dpi := baseDPI * opts.Scale
	rendered := make([]image.Image, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return failure("rendering cancelled: " + err.Error())
		}
		img, err := doc.RenderPage(p-1, dpi)
		if err != nil {
			r.logger.Warn("rasterize.page_failed", "page", p, "error", err)
			return failure(fmt.Sprintf("render page %d: %v", p, err))
		}
		rendered = append(rendered, imaging.FitImage(img, opts.MaxWidth, opts.MaxHeight))
	}

	var out []entity.ImageArtifact
	if opts.Mode == ModeLongImage {
		long := stitch(rendered, opts)
		a, err := encodePNG(long, 0)
		if err != nil {
			return failure(err.Error())
		}
		out = append(out, a)
	} else {
		for i, img := range rendered {
			a, err := encodePNG(img, pages[i])
			if err != nil {
				return failure(err.Error())
			}
			out = append(out, a)
		}
	}

	r.logger.Info("rasterize.ok",
		"mode", string(opts.Mode),
		"pages", len(pages),
		"page_count", total,
		"images", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Result{Success: true, Images: out, PageCount: total}
}

func (r *Rasterizer) passThrough(data []byte, mimeType string) Result {
	cfg, _, err := imaging.DecodeConfig(data)
	if err != nil {
		return failure("unreadable image: " + err.Error())
	}
	return Result{
		Success:     true,
		PassThrough: true,
		PageCount:   1,
		Images: []entity.ImageArtifact{{
			Data:     data,
			MIMEType: mimeType,
			Width:    cfg.Width,
			Height:   cfg.Height,
		}},
	}
}

func selectPages(opts Options, total int) ([]int, error) {
	switch opts.Mode {
	case ModeSinglePage:
		if opts.Page > total {
			return nil, fmt.Errorf("page %d out of range (document has %d)", opts.Page, total)
		}
		return []int{opts.Page}, nil
	case ModeMultiPage, ModeLongImage:
		n := min(opts.MaxPages, total)
		pages := make([]int, n)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}
	return nil, fmt.Errorf("unknown rasterize mode %q", opts.Mode)
}

// stitch stacks pages vertically, centred, with a separator band inside each gap.
func stitch(pages []image.Image, opts Options) image.Image {
	width, height := 0, 0
	for _, p := range pages {
		width = max(width, p.Bounds().Dx())
		height += p.Bounds().Dy()
	}
	gap := opts.Spacing + opts.SeparatorHeight
	height += gap * (len(pages) - 1)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	y := 0
	for i, p := range pages {
		b := p.Bounds()
		x := (width - b.Dx()) / 2
		draw.Draw(canvas, image.Rect(x, y, x+b.Dx(), y+b.Dy()), p, b.Min, draw.Over)
		y += b.Dy()
		if i == len(pages)-1 {
			break
		}
		sepTop := y + opts.Spacing/2
		if opts.SeparatorHeight > 0 {
			band := image.Rect(0, sepTop, width, sepTop+opts.SeparatorHeight)
			draw.Draw(canvas, band, image.NewUniform(opts.SeparatorColor), image.Point{}, draw.Src)
		}
		y += gap
	}
	return canvas
}

func encodePNG(img image.Image, page int) (entity.ImageArtifact, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return entity.ImageArtifact{}, fmt.Errorf("encode png: %w", err)
	}
	b := img.Bounds()
	return entity.ImageArtifact{
		Data:     buf.Bytes(),
		MIMEType: constants.MIMETypePNG,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Page:     page,
	}, nil
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}
