package storage

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	nhttp "github.com/chaos-io/layersplitter/util/http"
)

const (
	defaultAuthURL = "https://api.backblazeb2.com"
	uploadTimeout  = 60 * time.Second
)

// B2 uploads objects through the Backblaze B2 native API: authorize once,
// fetch an upload URL per file, POST the bytes with a SHA1 checksum.
type B2 struct {
	keyID    string
	appKey   string
	bucketID string
	authURL  string
	cli      nhttp.IClient
	log      *slog.Logger

	mu   sync.Mutex
	auth *b2Auth
}

type b2Auth struct {
	AuthorizationToken string `json:"authorizationToken"`
	APIURL             string `json:"apiUrl"`
	DownloadURL        string `json:"downloadUrl"`
}

type b2UploadTarget struct {
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

func NewB2(keyID, appKey, bucketID string, log *slog.Logger) *B2 {
	return &B2{
		keyID:    keyID,
		appKey:   appKey,
		bucketID: bucketID,
		authURL:  defaultAuthURL,
		cli:      nhttp.NewHTTPClient(),
		log:      log,
	}
}

func (b *B2) Upload(ctx context.Context, key, contentType string, data []byte) error {
	err := b.upload(ctx, key, contentType, data)

	// an expired account token answers 401; re-authorize once and retry
	var statusErr *nhttp.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusUnauthorized {
		b.log.Debug("auth token expired, re-authorizing", "key", key)
		b.resetAuth()
		err = b.upload(ctx, key, contentType, data)
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	b.log.Info("layer uploaded", "key", key, "bytes", len(data))
	return nil
}

func (b *B2) upload(ctx context.Context, key, contentType string, data []byte) error {
	auth, err := b.authorize(ctx)
	if err != nil {
		return err
	}

	target := &b2UploadTarget{}
	err = b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: auth.APIURL + "/b2api/v2/b2_get_upload_url",
		Method:     "POST",
		Header:     map[string]string{"Authorization": auth.AuthorizationToken},
		Body:       map[string]string{"bucketId": b.bucketID},
		Response:   target,
		Timeout:    uploadTimeout,
	})
	if err != nil {
		return fmt.Errorf("get upload url: %w", err)
	}

	sum := sha1.Sum(data)
	return b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: target.UploadURL,
		Method:     "POST",
		Header: map[string]string{
			"Authorization":     target.AuthorizationToken,
			"X-Bz-File-Name":    escapeFileName(key),
			"Content-Type":      contentType,
			"X-Bz-Content-Sha1": hex.EncodeToString(sum[:]),
		},
		Body:    data,
		Timeout: uploadTimeout,
	})
}

func (b *B2) authorize(ctx context.Context) (*b2Auth, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.auth != nil {
		return b.auth, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(b.keyID + ":" + b.appKey))
	auth := &b2Auth{}
	err := b.cli.DoHTTPRequest(ctx, &nhttp.RequestParam{
		RequestURI: b.authURL + "/b2api/v2/b2_authorize_account",
		Method:     "GET",
		Header:     map[string]string{"Authorization": "Basic " + basic},
		Response:   auth,
		Timeout:    uploadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("authorize account: %w", err)
	}

	b.auth = auth
	return auth, nil
}

func (b *B2) resetAuth() {
	b.mu.Lock()
	b.auth = nil
	b.mu.Unlock()
}

// escapeFileName percent-encodes a B2 file name, keeping path separators.
func escapeFileName(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.QueryEscape(p)
	}
	return strings.Join(parts, "/")
}
