package inference

import (
	"context"
	"errors"
	"image"
)

// Segmenter is the inference collaborator: it takes an image and returns a
// cutout whose alpha channel encodes the detected subject.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (image.Image, error)
}

// ErrUnsupportedInput marks a permanent failure: the model rejected the
// image, so retrying with the same input cannot succeed.
var ErrUnsupportedInput = errors.New("unsupported input image")
