package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// testClock is a fake clock whose sleep advances time instantly and records
// every requested wait.
type testClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) install(g *Governor) {
	g.now = func() time.Time { return c.now }
	g.sleep = func(_ context.Context, d time.Duration) error {
		c.sleeps = append(c.sleeps, d)
		c.now = c.now.Add(d)
		return nil
	}
}

func newTestGovernor(cfg Config) (*Governor, *testClock) {
	g := New(cfg)
	clock := newTestClock()
	clock.install(g)
	return g, clock
}

func TestExecuteSpacingBetweenCalls(t *testing.T) {
	g, clock := newTestGovernor(Config{MinInterval: 5 * time.Second})
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}

	if _, err := g.Execute(ctx, "op", fn); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("first call should not wait, slept %v", clock.sleeps)
	}

	// Second call 2s later must wait the remaining 3s.
	clock.now = clock.now.Add(2 * time.Second)
	if _, err := g.Execute(ctx, "op", fn); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 3*time.Second {
		t.Errorf("expected one 3s spacing wait, got %v", clock.sleeps)
	}

	// Third call after the full interval must not wait.
	clock.sleeps = nil
	clock.now = clock.now.Add(10 * time.Second)
	if _, err := g.Execute(ctx, "op", fn); err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("call after full interval should not wait, slept %v", clock.sleeps)
	}
	if calls != 3 {
		t.Errorf("expected 3 invocations, got %d", calls)
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	g, clock := newTestGovernor(Config{MinInterval: time.Second, MaxRetries: 3, BackoffFactor: 2})
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		if calls <= 2 {
			return nil, &models.APIError{Kind: models.KindTransientNetwork, Op: "op"}
		}
		return 42, nil
	}

	v, err := g.Execute(ctx, "op", fn)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("expected 42, got %v", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 invocations, got %d", calls)
	}
	// Backoff waits: 1s*2^0 then 1s*2^1 (interleaved with spacing waits).
	var backoffs []time.Duration
	for _, d := range clock.sleeps {
		if d == time.Second || d == 2*time.Second {
			backoffs = append(backoffs, d)
		}
	}
	if len(backoffs) < 2 {
		t.Errorf("expected two backoff waits in %v", clock.sleeps)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	g, _ := newTestGovernor(Config{MinInterval: time.Second, MaxRetries: 2, BackoffFactor: 2})
	ctx := context.Background()

	calls := 0
	cause := &models.APIError{Kind: models.KindRateLimited, Op: "op"}
	_, err := g.Execute(ctx, "op", func(ctx context.Context) (any, error) {
		calls++
		return nil, cause
	})
	if calls != 3 {
		t.Errorf("MaxRetries=2 should mean 3 invocations, got %d", calls)
	}
	if !models.IsKind(err, models.KindRetriesExhausted) {
		t.Errorf("expected retries-exhausted error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("exhaustion error should wrap the last failure")
	}
}

func TestRetryAfterHintTakesPrecedence(t *testing.T) {
	g, clock := newTestGovernor(Config{MinInterval: time.Second, MaxRetries: 1, BackoffFactor: 2})
	ctx := context.Background()

	calls := 0
	_, err := g.Execute(ctx, "op", func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, &models.APIError{Kind: models.KindRateLimited, Op: "op", RetryAfter: 42 * time.Second}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	found := false
	for _, d := range clock.sleeps {
		if d == 42*time.Second {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a 42s wait from the server hint, got %v", clock.sleeps)
	}
}

func TestNoRetryOnAuthFailure(t *testing.T) {
	g, _ := newTestGovernor(Config{MinInterval: time.Second, MaxRetries: 3})
	ctx := context.Background()

	calls := 0
	_, err := g.Execute(ctx, "op", func(ctx context.Context) (any, error) {
		calls++
		return nil, &models.APIError{Kind: models.KindAuthenticationFailed, Op: "op"}
	})
	if calls != 1 {
		t.Errorf("auth failure must not be retried, got %d invocations", calls)
	}
	if !models.IsKind(err, models.KindAuthenticationFailed) {
		t.Errorf("expected the original auth error, got %v", err)
	}
}

func TestExecuteCachedHitAndExpiry(t *testing.T) {
	g, clock := newTestGovernor(Config{MinInterval: 0, CacheEnabled: true, CacheTTL: time.Minute})
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	v1, _ := g.ExecuteCached(ctx, "op", "k", 0, fn)
	v2, _ := g.ExecuteCached(ctx, "op", "k", 0, fn)
	if calls != 1 {
		t.Errorf("second call within TTL should hit the cache, got %d invocations", calls)
	}
	if v1.(int) != 1 || v2.(int) != 1 {
		t.Errorf("cache should serve the original value, got %v and %v", v1, v2)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	v3, _ := g.ExecuteCached(ctx, "op", "k", 0, fn)
	if calls != 2 {
		t.Errorf("expired entry should refetch, got %d invocations", calls)
	}
	if v3.(int) != 2 {
		t.Errorf("refetch should return the new value, got %v", v3)
	}
}

func TestCacheDisabledAlwaysCalls(t *testing.T) {
	g, _ := newTestGovernor(Config{CacheEnabled: false})
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}
	g.ExecuteCached(ctx, "op", "k", time.Minute, fn)
	g.ExecuteCached(ctx, "op", "k", time.Minute, fn)
	if calls != 2 {
		t.Errorf("disabled cache must call every time, got %d invocations", calls)
	}
}

func TestInvalidateCache(t *testing.T) {
	g, _ := newTestGovernor(Config{CacheEnabled: true, CacheTTL: time.Hour})
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}
	g.ExecuteCached(ctx, "op", "k", 0, fn)
	g.InvalidateCache("op")
	g.ExecuteCached(ctx, "op", "k", 0, fn)
	if calls != 2 {
		t.Errorf("invalidated cache must refetch, got %d invocations", calls)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	g, clock := newTestGovernor(Config{MinInterval: 10 * time.Second})
	ctx := context.Background()

	fn := func(ctx context.Context) (any, error) { return nil, nil }
	g.Execute(ctx, "post", fn)
	// A different key immediately after must not inherit the spacing wait.
	g.Execute(ctx, "inbox", fn)
	if len(clock.sleeps) != 0 {
		t.Errorf("different keys must not share spacing, slept %v", clock.sleeps)
	}
}

func TestTypedExecute(t *testing.T) {
	g, _ := newTestGovernor(Config{})
	ctx := context.Background()

	s, err := Execute(ctx, g, "op", func(ctx context.Context) (string, error) {
		return "typed", nil
	})
	if err != nil || s != "typed" {
		t.Errorf("typed Execute = (%q, %v), want (typed, nil)", s, err)
	}

	_, err = Execute(ctx, g, "op", func(ctx context.Context) (string, error) {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: "op"}
	})
	if !models.IsKind(err, models.KindPermanentClientError) {
		t.Errorf("typed Execute should pass the error through, got %v", err)
	}
}

func TestContextCancelDuringWait(t *testing.T) {
	g := New(Config{MinInterval: time.Hour})
	clock := newTestClock()
	g.now = func() time.Time { return clock.now }
	g.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}
	ctx := context.Background()

	fn := func(ctx context.Context) (any, error) { return nil, nil }
	if _, err := g.Execute(ctx, "op", fn); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := g.Execute(ctx, "op", fn); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait should surface context.Canceled, got %v", err)
	}
}
