package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CacheDir is a directory of cached assets
type CacheDir struct {
	path string
}

func NewCacheDir(path string) *CacheDir {
	return &CacheDir{path: path}
}

func (c *CacheDir) Name() string { return "cache" }

// Path returns the directory, creating it if needed
func (c *CacheDir) Path() (string, error) {
	if err := os.MkdirAll(c.path, 0o700); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}
	return c.path, nil
}

// Clear removes every entry below the directory but keeps the directory
func (c *CacheDir) Clear(ctx context.Context) error {
	entries, err := os.ReadDir(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list cache dir: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(c.path, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
