package xapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

func respWithStatus(code int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: code,
		Status:     strconv.Itoa(code) + " status",
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(`{"detail":"test"}`)),
	}
}

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind models.Kind
	}{
		{"too many requests", http.StatusTooManyRequests, models.KindRateLimited},
		{"unauthorized", http.StatusUnauthorized, models.KindAuthenticationFailed},
		{"forbidden", http.StatusForbidden, models.KindPermissionDenied},
		{"internal error", http.StatusInternalServerError, models.KindTransientNetwork},
		{"bad gateway", http.StatusBadGateway, models.KindTransientNetwork},
		{"bad request", http.StatusBadRequest, models.KindPermanentClientError},
		{"not found", http.StatusNotFound, models.KindPermanentClientError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", respWithStatus(tt.code, nil))
			if !models.IsKind(err, tt.kind) {
				t.Errorf("classify(%d) kind = %v, want %v", tt.code, err, tt.kind)
			}
		})
	}
}

func TestClassifyRateLimitResetHeader(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	err := classify("op", respWithStatus(http.StatusTooManyRequests, map[string]string{
		"x-rate-limit-reset": strconv.FormatInt(reset, 10),
	}))
	ra := models.RetryAfter(err)
	if ra <= 0 || ra > 91*time.Second {
		t.Errorf("retry-after from reset header = %v, want roughly 90s", ra)
	}
}

func TestClassifyRetryAfterHeader(t *testing.T) {
	err := classify("op", respWithStatus(http.StatusTooManyRequests, map[string]string{
		"retry-after": "30",
	}))
	if ra := models.RetryAfter(err); ra != 30*time.Second {
		t.Errorf("retry-after header = %v, want 30s", ra)
	}
}

func TestClassifyPastResetHasNoHint(t *testing.T) {
	reset := time.Now().Add(-time.Minute).Unix()
	err := classify("op", respWithStatus(http.StatusTooManyRequests, map[string]string{
		"x-rate-limit-reset": strconv.FormatInt(reset, 10),
	}))
	if ra := models.RetryAfter(err); ra != 0 {
		t.Errorf("past reset timestamp should yield no hint, got %v", ra)
	}
}

func TestClassifyRetryable(t *testing.T) {
	if !models.Retryable(classify("op", respWithStatus(http.StatusTooManyRequests, nil))) {
		t.Error("429 must be retryable")
	}
	if !models.Retryable(classify("op", respWithStatus(http.StatusServiceUnavailable, nil))) {
		t.Error("503 must be retryable")
	}
	if models.Retryable(classify("op", respWithStatus(http.StatusUnauthorized, nil))) {
		t.Error("401 must not be retryable")
	}
	if models.Retryable(classify("op", respWithStatus(http.StatusBadRequest, nil))) {
		t.Error("400 must not be retryable")
	}
}

func TestDMEnvelopeResolution(t *testing.T) {
	raw := `{
		"data": [
			{"id": "e1", "text": "hi", "sender_id": "u1", "dm_conversation_id": "c1",
			 "attachments": {"media_keys": ["m1", "missing"]}},
			{"id": "e2", "text": "from a stranger", "sender_id": "u-unknown"}
		],
		"includes": {
			"users": [{"id": "u1", "username": "alice", "name": "Alice"}],
			"media": [{"media_key": "m1", "type": "photo", "url": "https://example.com/m1.jpg"}]
		},
		"meta": {"next_token": "next"}
	}`
	var env dmEventsEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	page := env.toPage()
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Events))
	}
	e1 := page.Events[0]
	if e1.SenderUsername != "alice" || e1.SenderName != "Alice" {
		t.Errorf("sender not resolved from includes: %+v", e1)
	}
	if len(e1.Media) != 1 || e1.Media[0].URL != "https://example.com/m1.jpg" {
		t.Errorf("media not resolved, missing keys must be dropped: %+v", e1.Media)
	}
	if page.Events[1].SenderUsername != "" {
		t.Errorf("unresolvable sender should stay empty, got %q", page.Events[1].SenderUsername)
	}
	if page.NextToken != "next" {
		t.Errorf("pagination token lost: %q", page.NextToken)
	}
}

func TestDMEventsURLClampsBatchSize(t *testing.T) {
	u := dmEventsURL("https://x/dm_events", "", 500)
	if !strings.Contains(u, "max_results=100") {
		t.Errorf("oversized batch must clamp to 100: %s", u)
	}
	u = dmEventsURL("https://x/dm_events", "evt-5", 10)
	if !strings.Contains(u, "since_id=evt-5") || !strings.Contains(u, "max_results=10") {
		t.Errorf("expected since_id and max_results in %s", u)
	}
}
