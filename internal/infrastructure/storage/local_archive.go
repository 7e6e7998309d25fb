package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appbilling "github.com/garage/billing/internal/application/billing"
)

var _ appbilling.DocumentArchive = (*LocalArchive)(nil)

// LocalArchive keeps billing documents in a directory. Links are file://
// URLs and never expire.
type LocalArchive struct {
	root string
}

// NewLocalArchive creates the root directory if needed
func NewLocalArchive(root string) (*LocalArchive, error) {
	if root == "" {
		return nil, errors.New("storage path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{root: abs}, nil
}

// Root returns the absolute archive directory
func (a *LocalArchive) Root() string {
	return a.root
}

// Upload writes data to root/key, creating parent directories
func (a *LocalArchive) Upload(ctx context.Context, key string, data []byte, _ string) error {
	path, err := a.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// GenerateDownloadURL returns a file:// link to an existing object
func (a *LocalArchive) GenerateDownloadURL(_ context.Context, key string, _ time.Duration) (string, time.Time, error) {
	path, err := a.path(key)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to stat object: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), time.Time{}, nil
}

// path maps key into the archive root and rejects keys that escape it
func (a *LocalArchive) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	path := filepath.Join(a.root, filepath.FromSlash(key))
	if path != a.root && !strings.HasPrefix(path, a.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes the archive", key)
	}
	return path, nil
}
