package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"savoro/internal/config"
)

// Storage is the object storage contract used for recipe images. Paths are
// forward-slash relative keys; implementations decide where the bytes live
// and how a key resolves to a URL.
type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Local stores objects on the filesystem under a root directory and serves
// them back through a static file route.
type Local struct {
	root    string
	baseURL string
}

// NewLocal builds a filesystem-backed storage from cfg.
func NewLocal(cfg config.StorageConfig) (*Local, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{
		root:    root,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Root exposes the backing directory so the router can mount a file server on it.
func (l *Local) Root() string {
	return l.root
}

// BaseURL exposes the route prefix objects are served from.
func (l *Local) BaseURL() string {
	return l.baseURL
}

// Save writes data under key, creating intermediate directories as needed.
func (l *Local) Save(ctx context.Context, key string, data []byte) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// Delete removes the object stored under key. A missing object surfaces as an
// os.ErrNotExist-wrapping error so callers can log and move on.
func (l *Local) Delete(ctx context.Context, key string) error {
	full, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// URL resolves the stored key to the route it is served from.
func (l *Local) URL(key string) string {
	return l.baseURL + "/" + strings.TrimLeft(key, "/")
}

func (l *Local) resolve(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
