// Package storage uploads user pictures to an object store and reports where
// they can be fetched from.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/socialnet/backend/internal/config"
	"github.com/socialnet/backend/internal/models"
)

// Supported object store backends.
const (
	BackendNone  = "none"
	BackendS3    = "s3"
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// ObjectStore persists an object under key and returns its public location.
type ObjectStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// New builds the configured object store. It returns nil when uploads are
// disabled.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendS3:
		return NewS3Storage(ctx, cfg)
	case BackendMinio:
		store, err := NewMinioStorage(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio storage: ensure bucket: %w", err)
		}
		return store, nil
	case BackendGCS:
		return NewGCSStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown object store backend %q", cfg.Backend)
	}
}

// PictureKey names the object for a new picture of the given kind, keeping
// the extension of the uploaded file.
func PictureKey(userID string, kind models.PictureKind, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("users/%s/%s-%s%s", userID, kind, uuid.NewString(), ext)
}

// publicURL joins key onto base, or falls back to the bare key when no base is
// configured.
func publicURL(base, key string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return key
	}
	return base + "/" + key
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	return key, nil
}
