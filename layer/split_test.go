package layer

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/layersplitter/job"
)

// original: left half red, right half blue.
// cutout: left half opaque (subject), right half fully transparent.
func makeFixtures(w, h int) (original, cutout *image.NRGBA) {
	original = image.NewNRGBA(image.Rect(0, 0, w, h))
	cutout = image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				original.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
				cutout.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				original.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
				cutout.SetNRGBA(x, y, color.NRGBA{A: 0})
			}
		}
	}
	return original, cutout
}

func TestSplit(t *testing.T) {
	original, cutout := makeFixtures(8, 8)

	layers, err := Split(original, cutout)
	require.NoError(t, err)

	// the fixed layer set, nothing missing, nothing extra
	require.Len(t, layers, len(job.Kinds()))
	for _, kind := range job.Kinds() {
		img, ok := layers[kind]
		require.True(t, ok, "missing layer %q", kind)
		assert.Equal(t, original.Bounds(), img.Bounds(), "layer %q bounds", kind)
	}

	mask, ok := layers[job.LayerMask].(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(255), mask.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(6, 1).Y)

	subject, ok := layers[job.LayerSubject].(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, uint8(255), subject.NRGBAAt(1, 1).A)
	assert.Equal(t, uint8(0), subject.NRGBAAt(6, 1).A)
	// premultiplied: transparent side renders black
	assert.Equal(t, uint8(0), subject.NRGBAAt(6, 1).B)

	background, ok := layers[job.LayerBackground].(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, uint8(0), background.NRGBAAt(1, 1).A)
	assert.Equal(t, uint8(255), background.NRGBAAt(6, 1).A)
	// background keeps the original color where the subject was cut away
	assert.Equal(t, uint8(255), background.NRGBAAt(6, 1).B)
}

func TestSplit_ResizesCutout(t *testing.T) {
	original, _ := makeFixtures(16, 16)
	_, smallCutout := makeFixtures(8, 8)

	layers, err := Split(original, smallCutout)
	require.NoError(t, err)

	for kind, img := range layers {
		assert.Equal(t, original.Bounds(), img.Bounds(), "layer %q bounds", kind)
	}
}

func TestSplit_SubImageInputs(t *testing.T) {
	// region of interest inside a larger canvas; everything outside is
	// green so a mis-anchored read is visible
	region := image.Rect(4, 4, 12, 12)

	original := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	cutout := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			original.SetNRGBA(x, y, color.NRGBA{G: 255, A: 255})
			cutout.SetNRGBA(x, y, color.NRGBA{G: 255, A: 128})
		}
	}
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			original.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			if x < region.Min.X+region.Dx()/2 {
				cutout.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
			} else {
				cutout.SetNRGBA(x, y, color.NRGBA{A: 0})
			}
		}
	}

	layers, err := Split(
		original.SubImage(region).(*image.NRGBA),
		cutout.SubImage(region).(*image.NRGBA),
	)
	require.NoError(t, err)

	for kind, img := range layers {
		assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds(), "layer %q bounds", kind)
	}

	mask := layers[job.LayerMask].(*image.Gray)
	assert.Equal(t, uint8(255), mask.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(0), mask.GrayAt(6, 1).Y)

	// background must carry the region's red, not the canvas's green
	background := layers[job.LayerBackground].(*image.NRGBA)
	assert.Equal(t, uint8(255), background.NRGBAAt(6, 1).R)
	assert.Equal(t, uint8(0), background.NRGBAAt(6, 1).G)

	subject := layers[job.LayerSubject].(*image.NRGBA)
	assert.Equal(t, uint8(255), subject.NRGBAAt(1, 1).R)
	assert.Equal(t, uint8(0), subject.NRGBAAt(1, 1).G)
}

func TestSplit_NoAlphaMask(t *testing.T) {
	original, _ := makeFixtures(8, 8)

	opaque := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range opaque.Pix {
		opaque.Pix[i] = 255
	}

	_, err := Split(original, opaque)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha mask")
}

func TestResizeWithinMax(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		maxSize int
		wantW   int
		wantH   int
	}{
		{name: "already small", w: 100, h: 50, maxSize: 1024, wantW: 100, wantH: 50},
		{name: "clamp width", w: 2048, h: 1024, maxSize: 1024, wantW: 1024, wantH: 512},
		{name: "clamp height", w: 512, h: 2048, maxSize: 1024, wantW: 256, wantH: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h))
			got := ResizeWithinMax(img, tt.maxSize)
			assert.Equal(t, tt.wantW, got.Bounds().Dx())
			assert.Equal(t, tt.wantH, got.Bounds().Dy())
		})
	}
}
