package rembg

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/Brownie44l1/rembg-api/internal/model"
)

// Postprocess turns the raw 1x1xHxW network output into an 8-bit mask of
// width x height. Values are min-max normalized first. A prediction without a
// finite, positive range (all values equal, or NaN/Inf) yields an all-zero
// mask, so the output is fully transparent.
func Postprocess(pred []float32, width, height int) (*image.Gray, error) {
	const size = model.InputSize

	if len(pred) != size*size {
		return nil, fmt.Errorf("expected %d mask values, got %d", size*size, len(pred))
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask size %dx%d", width, height)
	}

	small := image.NewGray(image.Rect(0, 0, size, size))
	lo, hi := minMax(pred)
	span := hi - lo
	if span > 0 && !math.IsInf(float64(span), 0) {
		for i, v := range pred {
			small.Pix[i] = quantize((v - lo) / span)
		}
	}

	return toGray(resize.Resize(uint(width), uint(height), small, resize.Bilinear)), nil
}

// minMax skips NaN values. For an all-NaN slice lo > hi.
func minMax(values []float32) (lo, hi float32) {
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// quantize maps [0,1] to [0,255], truncating.
func quantize(v float32) uint8 {
	v *= 255
	switch {
	case !(v >= 0):
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
