package rembg

import (
	"fmt"
	"image"
)

// Composite cuts rgb out with mask used as a straight (non-premultiplied)
// alpha channel. Where the mask is zero the output pixel is 0,0,0,0.
func Composite(rgb *image.NRGBA, mask *image.Gray) (*image.NRGBA, error) {
	b, mb := rgb.Bounds(), mask.Bounds()
	if b.Dx() != mb.Dx() || b.Dy() != mb.Dy() {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", mb.Dx(), mb.Dy(), b.Dx(), b.Dy())
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			a := mask.Pix[mask.PixOffset(mb.Min.X+x, mb.Min.Y+y)]
			if a == 0 {
				continue
			}
			si := rgb.PixOffset(b.Min.X+x, b.Min.Y+y)
			di := out.PixOffset(x, y)
			out.Pix[di+0] = rgb.Pix[si+0]
			out.Pix[di+1] = rgb.Pix[si+1]
			out.Pix[di+2] = rgb.Pix[si+2]
			out.Pix[di+3] = a
		}
	}
	return out, nil
}
