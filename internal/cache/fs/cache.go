// Package fs implements the page cache on the local filesystem, one file per
// source key, laid out by entity kind and page variant.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shelfsync/internal/scrape"
)

// Config captures the parameters for the filesystem cache.
type Config struct {
	// BaseDir is the root directory where raw pages are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Cache stores raw pages under BaseDir/<kind>/<variant>/<id>.html.
type Cache struct {
	baseDir string
}

// New creates a filesystem-backed cache, verifying the directory is usable.
// An unwritable cache directory is fatal to the run, so it fails here.
func New(cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Cache{baseDir: cfg.BaseDir}, nil
}

// Get returns the stored page for the key, if any. Age is not considered;
// freshness decisions belong to the resolver.
func (c *Cache) Get(key scrape.SourceKey) ([]byte, bool, error) {
	path, err := c.entryPath(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	return data, true, nil
}

// Put stores the page, replacing any existing entry for the key atomically
// (write to a temp file, then rename).
func (c *Cache) Put(key scrape.SourceKey, body []byte) error {
	path, err := c.entryPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cache directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache entry: %w", err)
	}
	return nil
}

func (c *Cache) entryPath(key scrape.SourceKey) (string, error) {
	fullPath := filepath.Join(c.baseDir, filepath.FromSlash(key.CachePath()))

	// Keys come from external identifiers; keep them inside the base dir.
	cleanBase := filepath.Clean(c.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
