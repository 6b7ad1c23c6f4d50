package storage

import "context"

// Uploader is the storage collaborator. Overwriting an existing key is
// idempotent, which keeps retried partial uploads harmless.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
}
