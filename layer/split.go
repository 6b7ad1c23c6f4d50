package layer

import (
	"errors"
	"image"
	"image/color"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/chaos-io/layersplitter/job"
)

// Split decomposes a segmentation result into the fixed layer set:
//
//	subject:    the cutout, premultiplied alpha (black where removed)
//	mask:       grayscale subject mask taken from the cutout's alpha
//	background: the original with the subject alpha'd out
//
// The model may answer at a different resolution than the original, so the
// cutout is scaled back onto the original's bounds before compositing.
func Split(original, cutout image.Image) (map[job.LayerKind]image.Image, error) {
	orig := toNRGBA(original)
	cut := toNRGBA(cutout)

	if !cut.Bounds().Eq(orig.Bounds()) {
		cut = toNRGBA(resize.Resize(
			uint(orig.Bounds().Dx()), uint(orig.Bounds().Dy()), cut, resize.Lanczos3))
	}

	if !hasUsefulAlpha(cut) {
		return nil, errors.New("cutout carries no alpha mask")
	}

	w, h := orig.Bounds().Dx(), orig.Bounds().Dy()

	subject := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(subject.Pix, cut.Pix)
	premultiply(subject)

	mask := image.NewGray(image.Rect(0, 0, w, h))
	background := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		cutRow := y * cut.Stride
		origRow := y * orig.Stride
		bgRow := y * background.Stride
		for x := 0; x < w; x++ {
			a := cut.Pix[cutRow+x*4+3]
			mask.SetGray(x, y, color.Gray{Y: a})

			// background keeps the original color, inverse-masked
			o := origRow + x*4
			b := bgRow + x*4
			background.Pix[b] = orig.Pix[o]
			background.Pix[b+1] = orig.Pix[o+1]
			background.Pix[b+2] = orig.Pix[o+2]
			background.Pix[b+3] = 255 - a
		}
	}

	return map[job.LayerKind]image.Image{
		job.LayerSubject:    subject,
		job.LayerBackground: background,
		job.LayerMask:       mask,
	}, nil
}

// ResizeWithinMax clamps the longest edge to maxSize before the image is
// shipped to the model.
func ResizeWithinMax(img image.Image, maxSize int) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := uint(float64(w) * scale)
	newH := uint(float64(h) * scale)

	return resize.Resize(newW, newH, img, resize.Lanczos3)
}

// hasUsefulAlpha reports whether the alpha channel carries any mask at all.
// A fully opaque cutout means the model produced no segmentation.
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// premultiply multiplies RGB by alpha so removed regions render black
// instead of leaking stale color through transparent pixels.
func premultiply(img *image.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		a := float64(img.Pix[i+3]) / 255.0
		img.Pix[i] = uint8(float64(img.Pix[i]) * a)
		img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * a)
		img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * a)
	}
}

// toNRGBA normalizes to an NRGBA anchored at (0,0). Sub-images keep their
// parent's offset bounds, which would break the raw Pix indexing above.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Bounds().Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
