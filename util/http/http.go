package http

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/http.go -package=mocks . IClient
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	// RawResponse receives the undecoded response body. Used for binary
	// payloads (the inference endpoint answers with image bytes).
	RawResponse *[]byte

	Timeout time.Duration
}
