// Package storage is the blob store adapter. Objects are addressed by a
// storage key chosen by the caller; readers get time-limited signed URLs
// derived from that key and never persisted.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get for a key that was never stored.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore writes and removes objects.
type BlobStore interface {
	// Put stores size bytes from body under key and returns the key.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// Signer turns a storage key into a temporary access URL.
type Signer interface {
	Sign(ctx context.Context, key string) (string, error)
}

// Forgetter drops anything remembered about key once its object is gone.
type Forgetter interface {
	Forget(ctx context.Context, key string)
}
