// internal/storage/local.go
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps artifacts under a directory on disk. Used for development
// and tests; object names map directly to relative paths.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (l *LocalStore) path(objectName string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectName))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object name %q", objectName)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalStore) Save(_ context.Context, objectName string, r io.Reader, _ int64, _ string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(p)
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

func (l *LocalStore) Open(_ context.Context, objectName string) (io.ReadCloser, error) {
	p, err := l.path(objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

func (l *LocalStore) Delete(_ context.Context, objectName string) error {
	p, err := l.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (l *LocalStore) PresignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}
