// Package media fetches user-attached files from Telegram and validates
// them before upload to X.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultMaxBytes is the largest attachment accepted for upload. X caps
// image uploads at 5 MB, so anything larger is rejected before any upload
// quota is spent.
const DefaultMaxBytes = 5 * 1024 * 1024

const fetchTimeout = 30 * time.Second

// allowedTypes maps accepted content types to their X media categories.
var allowedTypes = map[string]string{
	"image/jpeg": "tweet_image",
	"image/png":  "tweet_image",
	"image/gif":  "tweet_gif",
	"image/webp": "tweet_image",
}

// ErrUnsupportedType is returned for content types X will not accept.
var ErrUnsupportedType = fmt.Errorf("unsupported media type")

// ErrTooLarge is returned when an attachment exceeds the size limit.
var ErrTooLarge = fmt.Errorf("media exceeds size limit")

// Fetcher downloads attachments over HTTP with size and type enforcement.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher creates a Fetcher. maxBytes <= 0 uses DefaultMaxBytes.
func NewFetcher(maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url and returns the bytes plus the detected content type.
// The body read is capped at one byte past the limit so an oversized file
// fails without being fully downloaded.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("%w (limit %d bytes)", ErrTooLarge, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("fetch media: empty body")
	}

	mimeType := http.DetectContentType(data)
	if _, ok := allowedTypes[mimeType]; !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	slog.Debug("media fetched", "bytes", len(data), "mime_type", mimeType)
	return data, mimeType, nil
}

// Category returns the X upload category for a content type accepted by
// Fetch, or the image default for anything else.
func Category(mimeType string) string {
	if cat, ok := allowedTypes[mimeType]; ok {
		return cat
	}
	return "tweet_image"
}
