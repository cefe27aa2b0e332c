package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultMaxBytes = 25 << 20

// Downloader fetches attachments over HTTP.
type Downloader struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewDownloader builds a downloader. A nil client gets a 60s timeout and
// maxBytes <= 0 falls back to 25 MiB.
func NewDownloader(httpClient *http.Client, maxBytes int64) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Downloader{httpClient: httpClient, maxBytes: maxBytes}
}

// Download streams the resource at rawURL into dst, creating parent dirs.
// A partially written file is removed on failure.
func (d *Downloader) Download(ctx context.Context, rawURL, dst string) error {
	body, err := d.open(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("media: create dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("media: create file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(body, d.maxBytes+1))
	closeErr := f.Close()
	if copyErr == nil && n > d.maxBytes {
		copyErr = fmt.Errorf("media: file exceeds %d bytes", d.maxBytes)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("media: write file: %w", err)
	}
	return nil
}

// Fetch reads the whole resource into memory, bounded by the size limit.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := d.open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read body: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("media: file exceeds %d bytes", d.maxBytes)
	}
	return data, nil
}

func (d *Downloader) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("media: build request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: download: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("media: download status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
