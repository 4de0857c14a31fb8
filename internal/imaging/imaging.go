// Package imaging holds the decode, fit and resample helpers shared by the rasterizer and compressor.
package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Decode decodes any registered raster format (JPEG, PNG, GIF, WebP).
func Decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

// DecodeConfig reads dimensions without decoding pixels.
func DecodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}

// Fit scales w x h down to fit within maxW x maxH, preserving aspect ratio.
// A non-positive bound is unconstrained; images are never upscaled.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	ratio := 1.0
	if maxW > 0 && w > maxW {
		ratio = math.Min(ratio, float64(maxW)/float64(w))
	}
	if maxH > 0 && h > maxH {
		ratio = math.Min(ratio, float64(maxH)/float64(h))
	}
	if ratio >= 1 {
		return w, h
	}
	return Scale(w, h, ratio)
}

// Scale multiplies both dimensions by factor, keeping each at least 1px.
func Scale(w, h int, factor float64) (int, int) {
	nw := int(math.Round(float64(w) * factor))
	nh := int(math.Round(float64(h) * factor))
	return max(nw, 1), max(nh, 1)
}

// Resize resamples src to w x h with Catmull-Rom. It returns src unchanged when sizes match.
func Resize(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// FitImage resizes src to fit within maxW x maxH.
func FitImage(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxW, maxH)
	return Resize(src, w, h)
}
