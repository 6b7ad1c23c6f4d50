package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient() IClient {
	// No client-level timeout: it would silently cap every request at the
	// same bound regardless of RequestParam.Timeout. The deadline comes
	// from the request context instead.
	return &HTTPClient{
		client: &http.Client{},
	}
}

func (c *HTTPClient) DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error {
	if requestParam == nil {
		return errors.New("request param is nil")
	}

	timeout := requestParam.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	jsonBody := false
	switch b := requestParam.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	case []byte:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(ctx, requestParam.Method, requestParam.RequestURI, body)
	if err != nil {
		return err
	}

	for k, v := range requestParam.Header {
		req.Header.Set(k, v)
	}
	if jsonBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respData)}
	}

	if requestParam.RawResponse != nil {
		*requestParam.RawResponse = respData
	}
	if requestParam.Response != nil && len(respData) > 0 {
		if err := json.Unmarshal(respData, requestParam.Response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// StatusError reports a non-2xx response, keeping the code available to
// callers that classify failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d: %s", e.Code, e.Body)
}
