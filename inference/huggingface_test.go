package inference

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func TestHuggingFace_Segment(t *testing.T) {
	t.Parallel()

	cutout := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	cutout.SetNRGBA(1, 1, color.NRGBA{R: 200, A: 255})
	var cutoutPNG bytes.Buffer
	require.NoError(t, png.Encode(&cutoutPNG, cutout))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		_, _, err = image.Decode(bytes.NewReader(body))
		require.NoError(t, err, "request body must be a decodable image")

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cutoutPNG.Bytes())
	}))
	defer server.Close()

	h := NewHuggingFace(server.URL, "test-key", testLogger())

	got, err := h.Segment(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), got.Bounds())
}

func TestHuggingFace_Segment_UnsupportedInput(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "cannot identify image"}`))
	}))
	defer server.Close()

	h := NewHuggingFace(server.URL, "test-key", testLogger())

	_, err := h.Segment(context.Background(), testImage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestHuggingFace_Segment_ModelLoading(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": "Model is currently loading", "estimated_time": 20.0}`))
	}))
	defer server.Close()

	h := NewHuggingFace(server.URL, "test-key", testLogger())

	_, err := h.Segment(context.Background(), testImage())
	require.Error(t, err)
	// cold start is transient, never a permanent rejection
	assert.NotErrorIs(t, err, ErrUnsupportedInput)
}

func TestHuggingFace_Segment_GarbageResponse(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	defer server.Close()

	h := NewHuggingFace(server.URL, "test-key", testLogger())

	_, err := h.Segment(context.Background(), testImage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model response")
}
