// Package ratelimit implements the single chokepoint for outbound X API
// calls.
//
// Every operation the client performs is dispatched through a Governor,
// which enforces a minimum interval between calls sharing an operation key,
// retries rate-limit and transient failures with bounded exponential
// backoff, and optionally caches results with a TTL. Operation keys are
// independent: a backoff wait on the inbox-poll key never delays a post.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/metrics"
	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// Default governor settings, matching the free-tier posture of deferring
// aggressively rather than probing.
const (
	DefaultMinInterval   = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = 2.0
	DefaultMaxBackoff    = 15 * time.Minute
	DefaultCacheTTL      = 5 * time.Minute
)

// Config holds the tunables for a Governor.
type Config struct {
	MinInterval   time.Duration // minimum spacing between thunk starts per key
	MaxRetries    int           // retries after the original attempt
	BackoffFactor float64       // multiplier per retry attempt
	MaxBackoff    time.Duration // cap on any computed backoff wait
	CacheEnabled  bool          // enable the per-key result cache
	CacheTTL      time.Duration // default TTL when DoCached is given ttl <= 0
}

// Thunk is one outbound call. The governor owns when it runs and how often
// it is retried; the thunk owns what it does.
type Thunk func(ctx context.Context) (any, error)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// opState is the per-operation-key state. Its mutex serializes calls under
// the same key, which is what enforces the spacing invariant; callers under
// other keys are unaffected.
type opState struct {
	mu       sync.Mutex
	lastCall time.Time
	cache    map[string]cacheEntry
}

// Governor wraps outbound calls with spacing, retry and caching.
type Governor struct {
	cfg Config

	mu  sync.Mutex
	ops map[string]*opState

	// Injection points for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Governor, filling zero-valued config fields with defaults.
func New(cfg Config) *Governor {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Governor{
		cfg:   cfg,
		ops:   make(map[string]*opState),
		now:   time.Now,
		sleep: sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Governor) op(key string) *opState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.ops[key]
	if !ok {
		st = &opState{cache: make(map[string]cacheEntry)}
		g.ops[key] = st
	}
	return st
}

// Execute runs fn under governance for key without caching.
func (g *Governor) Execute(ctx context.Context, key string, fn Thunk) (any, error) {
	return g.execute(ctx, key, "", 0, fn)
}

// ExecuteCached runs fn under governance for key, returning a cached value
// for (key, cacheKey) when one is fresh. A ttl <= 0 uses the configured
// default. Caching is skipped entirely when disabled in config.
func (g *Governor) ExecuteCached(ctx context.Context, key, cacheKey string, ttl time.Duration, fn Thunk) (any, error) {
	if ttl <= 0 {
		ttl = g.cfg.CacheTTL
	}
	return g.execute(ctx, key, cacheKey, ttl, fn)
}

func (g *Governor) execute(ctx context.Context, key, cacheKey string, ttl time.Duration, fn Thunk) (any, error) {
	st := g.op(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	if g.cfg.CacheEnabled && cacheKey != "" {
		if entry, ok := st.cache[cacheKey]; ok && g.now().Before(entry.expiresAt) {
			slog.Debug("governor cache hit", "op", key, "cache_key", cacheKey)
			return entry.value, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if err := g.waitInterval(ctx, st, key); err != nil {
			return nil, err
		}

		st.lastCall = g.now()
		start := st.lastCall
		value, err := fn(ctx)
		metrics.APICallDuration.WithLabelValues(key).Observe(g.now().Sub(start).Seconds())

		if err == nil {
			if attempt > 0 {
				slog.Info("governed call succeeded after retry", "op", key, "attempt", attempt+1)
			}
			if g.cfg.CacheEnabled && cacheKey != "" {
				st.cache[cacheKey] = cacheEntry{value: value, expiresAt: g.now().Add(ttl)}
			}
			return value, nil
		}

		if !models.Retryable(err) {
			slog.Error("governed call failed, not retrying", "op", key, "error", err)
			return nil, err
		}

		lastErr = err
		if models.IsKind(err, models.KindRateLimited) {
			metrics.RateLimitHits.WithLabelValues(key).Inc()
		}
		if attempt == g.cfg.MaxRetries {
			break
		}

		wait := g.retryWait(err, attempt)
		metrics.RetriesTotal.WithLabelValues(key).Inc()
		slog.Warn("governed call failed, backing off",
			"op", key, "attempt", attempt+1, "max_retries", g.cfg.MaxRetries, "wait", wait, "error", err)
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	slog.Error("governed call exhausted retries", "op", key, "attempts", g.cfg.MaxRetries+1, "error", lastErr)
	return nil, &models.APIError{Kind: models.KindRetriesExhausted, Op: key, Err: lastErr}
}

// waitInterval delays the caller until MinInterval has elapsed since the
// previous thunk start under this key. The full remainder is slept in one
// shot so a coarse clock cannot cause spinning.
func (g *Governor) waitInterval(ctx context.Context, st *opState, key string) error {
	if g.cfg.MinInterval <= 0 || st.lastCall.IsZero() {
		return nil
	}
	elapsed := g.now().Sub(st.lastCall)
	if remaining := g.cfg.MinInterval - elapsed; remaining > 0 {
		slog.Debug("governor spacing wait", "op", key, "wait", remaining)
		return g.sleep(ctx, remaining)
	}
	return nil
}

// retryWait computes the wait before the next attempt. A server-specified
// retry-after hint takes precedence over the computed backoff; computed
// backoff is capped at MaxBackoff.
func (g *Governor) retryWait(err error, attempt int) time.Duration {
	if hint := models.RetryAfter(err); hint > 0 {
		return hint
	}
	backoff := time.Duration(float64(g.cfg.MinInterval) * math.Pow(g.cfg.BackoffFactor, float64(attempt)))
	if backoff > g.cfg.MaxBackoff {
		backoff = g.cfg.MaxBackoff
	}
	return backoff
}

// InvalidateCache drops all cached values under key. Used when a forced
// verification reset must guarantee the next call hits the network.
func (g *Governor) InvalidateCache(key string) {
	st := g.op(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache = make(map[string]cacheEntry)
}

// Execute runs fn under g's governance for key and returns its typed result.
// This is the generic front door used by the client so call sites avoid
// type assertions.
func Execute[T any](ctx context.Context, g *Governor, key string, fn func(context.Context) (T, error)) (T, error) {
	v, err := g.Execute(ctx, key, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// ExecuteCached is the typed variant of Governor.ExecuteCached.
func ExecuteCached[T any](ctx context.Context, g *Governor, key, cacheKey string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	v, err := g.ExecuteCached(ctx, key, cacheKey, ttl, func(ctx context.Context) (any, error) { return fn(ctx) })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
