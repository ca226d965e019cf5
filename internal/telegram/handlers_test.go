package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

func TestUserFacingNeverLeaksRawErrors(t *testing.T) {
	secret := errors.New("Bearer AAAA-super-secret-token rejected")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", &models.APIError{Kind: models.KindRateLimited, Err: secret}, "rate limiting"},
		{"rate limited with hint", &models.APIError{Kind: models.KindRateLimited, RetryAfter: 30 * time.Second, Err: secret}, "30s"},
		{"retries exhausted", &models.APIError{Kind: models.KindRetriesExhausted, Err: secret}, "several attempts"},
		{"auth failed", &models.APIError{Kind: models.KindAuthenticationFailed, Err: secret}, "credentials"},
		{"permission denied", &models.APIError{Kind: models.KindPermissionDenied, Err: secret}, "permission"},
		{"transient", &models.APIError{Kind: models.KindTransientNetwork, Err: secret}, "network"},
		{"unknown", errors.New("Bearer AAAA-super-secret-token rejected"), "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := userFacing(tt.err)
			if !strings.Contains(msg, tt.want) {
				t.Errorf("userFacing = %q, want it to mention %q", msg, tt.want)
			}
			if strings.Contains(msg, "super-secret-token") {
				t.Errorf("userFacing leaked the raw error: %q", msg)
			}
		})
	}
}

func TestBuildPreview(t *testing.T) {
	out := buildPreview("hello world", 2, false)
	for _, want := range []string{"hello world", "2 photo(s)", "11/280"} {
		if !strings.Contains(out, want) {
			t.Errorf("preview missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "dry-run") {
		t.Error("preview should not mention dry-run when disabled")
	}

	out = buildPreview("", 1, true)
	if !strings.Contains(out, "dry-run") {
		t.Error("dry-run preview should say so")
	}
	if !strings.Contains(out, "0/280") {
		t.Errorf("empty caption should show zero length:\n%s", out)
	}
}

func TestBuildPreviewCountsRunes(t *testing.T) {
	out := buildPreview(strings.Repeat("ü", 10), 0, false)
	if !strings.Contains(out, "10/280") {
		t.Errorf("preview must count runes, not bytes:\n%s", out)
	}
}
