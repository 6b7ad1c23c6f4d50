package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/chaos-io/layersplitter/util"
	nhttp "github.com/chaos-io/layersplitter/util/http"
)

const segmentTimeout = 120 * time.Second

// HuggingFace calls a background-removal model on the Hugging Face
// Inference API. The request body is the raw image, the response body is a
// PNG whose alpha channel is the subject mask.
type HuggingFace struct {
	endpoint string
	apiKey   string
	cli      nhttp.IClient
	log      *slog.Logger
}

func NewHuggingFace(endpoint, apiKey string, log *slog.Logger) *HuggingFace {
	return &HuggingFace{
		endpoint: endpoint,
		apiKey:   apiKey,
		cli:      nhttp.NewHTTPClient(),
		log:      log,
	}
}

func (h *HuggingFace) Segment(ctx context.Context, img image.Image) (image.Image, error) {
	payload, err := util.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	var raw []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: h.endpoint,
		Method:     "POST",
		Header: map[string]string{
			"Authorization": "Bearer " + h.apiKey,
			"Content-Type":  "image/png",
		},
		Body:        payload,
		RawResponse: &raw,
		Timeout:     segmentTimeout,
	}

	if err := h.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, classify(err)
	}

	h.log.Debug("model responded", "bytes", len(raw))

	cutout, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return cutout, nil
}

// classify maps HTTP failures onto the retry policy: client errors mean the
// model rejected the input (permanent), everything else — cold starts,
// rate limits, timeouts — stays transient.
func classify(err error) error {
	var statusErr *nhttp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", ErrUnsupportedInput, statusErr.Body)
		}
	}
	return fmt.Errorf("inference request: %w", err)
}
