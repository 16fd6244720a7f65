// Package rembg removes image backgrounds with a salient-object network:
// the image is normalized into a fixed-size tensor, the network predicts a
// per-pixel foreground map, and that map becomes the alpha channel of the
// output.
package rembg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/rembg-api/internal/logging"
)

var ErrEmptyImage = errors.New("image has no pixels")

// Predictor runs the segmentation network on a preprocessed tensor.
type Predictor interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
}

type Remover struct {
	predictor Predictor
	logger    *zap.Logger
}

func NewRemover(predictor Predictor, logger *zap.Logger) *Remover {
	return &Remover{
		predictor: predictor,
		logger:    logger.Named("rembg"),
	}
}

// Remove returns a copy of img, the size of img, whose alpha channel is the
// predicted foreground mask.
func (r *Remover) Remove(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	rgb := toRGB(img)
	width, height := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	if width == 0 || height == 0 {
		return nil, ErrEmptyImage
	}

	timer := logging.NewStageTimer()
	input := Preprocess(rgb)
	timer.Mark("preprocess")

	pred, err := r.predictor.Predict(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	timer.Mark("inference")

	mask, err := Postprocess(pred, width, height)
	if err != nil {
		return nil, fmt.Errorf("postprocess: %w", err)
	}
	timer.Mark("postprocess")

	out, err := Composite(rgb, mask)
	if err != nil {
		return nil, fmt.Errorf("composite: %w", err)
	}
	timer.Mark("composite")

	r.logger.Debug("background removed", append([]zap.Field{
		zap.Int("width", width),
		zap.Int("height", height),
	}, timer.Fields()...)...)

	return out, nil
}

// RemoveBackground decodes data (PNG, JPEG, GIF, BMP, TIFF or WebP), removes
// the background and returns the result encoded as PNG.
func (r *Remover) RemoveBackground(ctx context.Context, data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	out, err := r.Remove(ctx, img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
