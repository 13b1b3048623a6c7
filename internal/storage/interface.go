package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("storage: blob not found")

// BlobStore keeps prefetched image bytes so later loads of the same URL can
// be served without another network round trip.
type BlobStore interface {
	// Put stores a blob under key
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get opens the blob stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a blob exists
	Exists(ctx context.Context, key string) (bool, error)
}

// KeyForURL derives the storage key of a logical image URL. The first two
// hex characters are used as a prefix to spread keys across buckets.
func KeyForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	h := hex.EncodeToString(sum[:])
	return h[:2] + "/" + h
}
