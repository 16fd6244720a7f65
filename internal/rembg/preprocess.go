package rembg

import (
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/Brownie44l1/rembg-api/internal/model"
)

// ImageNet statistics, RGB order.
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// toRGB copies img into a zero-origin NRGBA buffer with every pixel opaque.
// Any source alpha is discarded, not composited.
func toRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Preprocess resizes rgb to the network input size (aspect ratio is not
// kept), scales to [0,1], normalizes each channel and lays the values out as
// 1x3xHxW.
func Preprocess(rgb image.Image) []float32 {
	const size = model.InputSize

	resized := resize.Resize(size, size, rgb, resize.Bilinear)
	b := resized.Bounds()

	plane := size * size
	input := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, bl, _ := resized.At(b.Min.X+x, b.Min.Y+y).RGBA()

			i := y*size + x
			input[i] = normalize(r, 0)
			input[plane+i] = normalize(g, 1)
			input[2*plane+i] = normalize(bl, 2)
		}
	}
	return input
}

func normalize(v uint32, channel int) float32 {
	return (float32(v>>8)/255 - Mean[channel]) / Std[channel]
}
