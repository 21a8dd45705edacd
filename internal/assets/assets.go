// Package assets reads pre-rendered chart assets from a directory or a remote base URL.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an asset does not exist at the source.
var ErrNotFound = errors.New("asset not found")

// Source opens assets by slash-separated relative path.
type Source interface {
	Open(ctx context.Context, rel string) (io.ReadCloser, error)
	Locate(rel string) string
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// New returns a Remote source for http(s) locations and a Dir otherwise.
func New(location, cacheDir string, client HTTPClient) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return &Remote{BaseURL: location, CacheDir: cacheDir, Client: client}
	}
	return Dir{Root: location}
}

// Dir serves assets from a local directory.
type Dir struct {
	Root string
}

// Open opens rel under the root directory.
func (d Dir) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.Root, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open asset: %w", err)
	}
	return f, nil
}

// Locate returns the file path for rel.
func (d Dir) Locate(rel string) string {
	return filepath.Join(d.Root, filepath.FromSlash(rel))
}

// Remote serves assets from a base URL, optionally caching them on disk.
type Remote struct {
	BaseURL  string
	CacheDir string
	Client   HTTPClient
}

// Open fetches rel, preferring a cached copy.
func (r *Remote) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	clean, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}
	var cachePath string
	if r.CacheDir != "" {
		cachePath = filepath.Join(r.CacheDir, filepath.FromSlash(clean))
		if f, err := os.Open(cachePath); err == nil {
			return f, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open cached asset: %w", err)
		}
	}

	data, err := r.fetch(ctx, clean)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := WriteFile(cachePath, data); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Locate returns the URL for rel.
func (r *Remote) Locate(rel string) string {
	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(rel, "/")
}

func (r *Remote) fetch(ctx context.Context, rel string) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Locate(rel), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected asset status: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to download asset: %w", err)
	}
	return data, nil
}

// ReadAll reads rel from src in full.
func ReadAll(ctx context.Context, src Source, rel string) ([]byte, error) {
	rc, err := src.Open(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// WriteFile writes data through a temp file in the destination directory and renames it into place.
func WriteFile(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmpFile, err := os.CreateTemp(dir, "emiwiz-*"+filepath.Ext(dest))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func cleanRel(rel string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(rel))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("empty asset path: %w", ErrNotFound)
	}
	return clean, nil
}
