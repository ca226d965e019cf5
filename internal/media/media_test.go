package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// pngBytes is a minimal valid PNG header plus padding, enough for
// http.DetectContentType to report image/png.
func pngBytes(size int) []byte {
	header := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	buf := make([]byte, size)
	copy(buf, header)
	return buf
}

func serveBytes(t *testing.T, body []byte, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchValidImage(t *testing.T) {
	body := pngBytes(512)
	srv := serveBytes(t, body, http.StatusOK)
	f := NewFetcher(0)

	data, mimeType, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if mimeType != "image/png" {
		t.Errorf("mime type = %q, want image/png", mimeType)
	}
	if !bytes.Equal(data, body) {
		t.Errorf("body mismatch: got %d bytes, want %d", len(data), len(body))
	}
}

func TestFetchRejectsOversized(t *testing.T) {
	srv := serveBytes(t, pngBytes(2048), http.StatusOK)
	f := NewFetcher(1024)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized fetch = %v, want ErrTooLarge", err)
	}
}

func TestFetchRejectsUnsupportedType(t *testing.T) {
	srv := serveBytes(t, []byte("%PDF-1.4 not an image at all"), http.StatusOK)
	f := NewFetcher(0)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("non-image fetch = %v, want ErrUnsupportedType", err)
	}
}

func TestFetchRejectsBadStatus(t *testing.T) {
	srv := serveBytes(t, nil, http.StatusNotFound)
	f := NewFetcher(0)

	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("404 fetch should fail")
	}
}

func TestFetchRejectsEmptyBody(t *testing.T) {
	srv := serveBytes(t, nil, http.StatusOK)
	f := NewFetcher(0)

	if _, _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("empty body should fail")
	}
}

func TestCategory(t *testing.T) {
	if got := Category("image/gif"); got != "tweet_gif" {
		t.Errorf("Category(image/gif) = %q, want tweet_gif", got)
	}
	if got := Category("image/png"); got != "tweet_image" {
		t.Errorf("Category(image/png) = %q, want tweet_image", got)
	}
	if got := Category("application/pdf"); got != "tweet_image" {
		t.Errorf("Category fallback = %q, want tweet_image", got)
	}
}
