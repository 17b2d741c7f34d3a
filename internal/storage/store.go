// internal/storage/store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrPresignUnsupported is returned by stores that cannot mint download URLs;
// callers fall back to streaming through the API.
var ErrPresignUnsupported = errors.New("presigned URLs not supported by this store")

// ObjectStore persists binary artifacts: uploaded images, heatmaps, reports.
type ObjectStore interface {
	Save(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// NewFromEnv selects the store backend: MinIO when STORAGE_BACKEND=minio (or
// a MinIO endpoint is configured), local disk otherwise.
func NewFromEnv(localDir string) (ObjectStore, error) {
	backend := os.Getenv("STORAGE_BACKEND")
	if backend == "" {
		if os.Getenv("MINIO_ENDPOINT") != "" {
			backend = "minio"
		} else {
			backend = "local"
		}
	}

	switch backend {
	case "minio":
		return NewMinIOStore()
	case "local":
		return NewLocalStore(localDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// ObjectName builds a unique object name under a prefix, keeping the original
// extension: <prefix>/<uuid><ext>.
func ObjectName(prefix, filename string) string {
	return filepath.ToSlash(filepath.Join(prefix, uuid.New().String()+filepath.Ext(filename)))
}
