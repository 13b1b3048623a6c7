package storage

import (
	"context"
	"strings"
)

// NewStore creates the BlobStore described by cfg. A nil cfg or the memory
// type returns an in-process store.
// Parameters:
//   - ctx: context for bucket provisioning.
//   - cfg: storage configuration.
// Returns:
//   - BlobStore: initialized store.
//   - error: non-nil if the remote store cannot be created.
func NewStore(ctx context.Context, cfg *S3Config) (BlobStore, error) {
	if cfg == nil || cfg.Type == StorageTypeMemory || (cfg.Type == "" && cfg.Endpoint == "") {
		return NewMemoryStore(), nil
	}

	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	store, err := NewS3Store(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// detectStorageType guesses the store kind from the endpoint host.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
