package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &APIError{Kind: KindRateLimited}, true},
		{"transient network", &APIError{Kind: KindTransientNetwork}, true},
		{"auth failed", &APIError{Kind: KindAuthenticationFailed}, false},
		{"permission denied", &APIError{Kind: KindPermissionDenied}, false},
		{"permanent client", &APIError{Kind: KindPermanentClientError}, false},
		{"retries exhausted", &APIError{Kind: KindRetriesExhausted}, false},
		{"unclassified", errors.New("something odd"), true},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.retryable {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestRetryableThroughWrapping(t *testing.T) {
	inner := &APIError{Kind: KindRateLimited, Op: "create_post"}
	wrapped := fmt.Errorf("outer context: %w", inner)
	if !Retryable(wrapped) {
		t.Error("wrapped rate-limit error must stay retryable")
	}
	if !IsKind(wrapped, KindRateLimited) {
		t.Error("IsKind must see through wrapping")
	}
}

func TestRetryAfterExtraction(t *testing.T) {
	err := &APIError{Kind: KindRateLimited, RetryAfter: 30 * time.Second}
	if got := RetryAfter(err); got != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", got)
	}
	if got := RetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfter on plain error = %v, want 0", got)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{
		Kind:       KindRateLimited,
		Op:         "create_post",
		StatusCode: 429,
		Err:        errors.New("quota exceeded"),
	}
	msg := err.Error()
	for _, want := range []string{"create_post", "rate_limited", "429", "quota exceeded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message missing %q: %s", want, msg)
		}
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(KindTransientNetwork, "op", cause)
	if !errors.Is(err, cause) {
		t.Error("APIError must unwrap to its cause")
	}
}

func TestKindString(t *testing.T) {
	if KindVerificationUnknown.String() != "verification_unknown" {
		t.Errorf("unexpected name %q", KindVerificationUnknown.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("out-of-range kind should be unknown, got %q", Kind(99).String())
	}
}

func TestValidatePost(t *testing.T) {
	long := strings.Repeat("x", MaxPostLength+1)
	exact := strings.Repeat("y", MaxPostLength)
	tests := []struct {
		name     string
		text     string
		mediaIDs []string
		wantErr  error
	}{
		{"plain text", "hello", nil, nil},
		{"exact limit", exact, nil, nil},
		{"too long", long, nil, ErrPostTooLong},
		{"empty no media", "", nil, ErrEmptyPost},
		{"whitespace only", "   ", nil, ErrEmptyPost},
		{"empty with media", "", []string{"m1"}, nil},
		{"too many media", "pic dump", []string{"1", "2", "3", "4", "5"}, ErrTooManyMedia},
		{"max media", "pics", []string{"1", "2", "3", "4"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePost(tt.text, tt.mediaIDs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePost = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePostCountsRunes(t *testing.T) {
	// 280 multibyte characters are within the limit even though the byte
	// count is far larger.
	text := strings.Repeat("ü", MaxPostLength)
	if err := ValidatePost(text, nil); err != nil {
		t.Errorf("280 runes should be valid, got %v", err)
	}
}

func TestMediaRefBestURL(t *testing.T) {
	m := MediaRef{URL: "https://a", PreviewURL: "https://b"}
	if m.BestURL() != "https://a" {
		t.Errorf("direct URL should win, got %q", m.BestURL())
	}
	m = MediaRef{PreviewURL: "https://b"}
	if m.BestURL() != "https://b" {
		t.Errorf("preview should be the fallback, got %q", m.BestURL())
	}
}

func TestCredentialsRedacted(t *testing.T) {
	c := Credentials{APIKey: "secret-key", BearerToken: "secret-bearer"}
	red := c.Redacted()
	if !red["api_key"] || !red["bearer_token"] {
		t.Errorf("set slots should read true: %v", red)
	}
	if red["access_token"] {
		t.Errorf("unset slots should read false: %v", red)
	}
	for k, v := range red {
		if fmt.Sprintf("%v", v) == "secret-key" || fmt.Sprintf("%v", v) == "secret-bearer" {
			t.Errorf("redacted output leaked a secret under %q", k)
		}
	}
}
