// Package auth manages the OAuth2 user token used for DM endpoints: a
// file-persisted token pair, an in-memory cache in front of it, and a
// background refresher that renews the pair before it expires.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// refreshWindow is how far before expiry a token is considered stale.
const refreshWindow = 5 * time.Minute

// defaultCheckInterval is how often the background refresher wakes up.
const defaultCheckInterval = time.Minute

// ErrNoToken is returned when no token pair has been stored yet; the
// authorize command creates the initial pair.
var ErrNoToken = errors.New("no user token stored, run the authorize command first")

// Refresher exchanges a refresh token for a fresh pair. The governed X
// client satisfies this.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// FileTokenStore persists a token pair as JSON on disk.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store writing to path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the stored pair. Returns ErrNoToken when the file is absent.
func (s *FileTokenStore) Load() (models.TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.TokenPair{}, ErrNoToken
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("read token file: %w", err)
	}
	var pair models.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("parse token file: %w", err)
	}
	return pair, nil
}

// Save writes the pair atomically with owner-only permissions.
func (s *FileTokenStore) Save(pair models.TokenPair) error {
	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token pair: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Source caches the current token pair and refreshes it through the client
// when it nears expiry. Token is hot-path safe: it only takes a read lock.
type Source struct {
	mu    sync.RWMutex
	pair  models.TokenPair
	store *FileTokenStore

	refresherMu sync.Mutex
	refresher   Refresher
}

// NewSource creates a Source backed by store, loading any persisted pair.
// A missing token file is not an error here: DM features stay disabled
// until the authorize command stores one.
func NewSource(store *FileTokenStore) *Source {
	s := &Source{store: store}
	pair, err := store.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		slog.Warn("no user token on disk, dm endpoints unavailable until authorized")
	case err != nil:
		slog.Error("token load failed", "error", err)
	default:
		s.pair = pair
		slog.Info("user token loaded", "expires_at", pair.ExpiresAt)
	}
	return s
}

// SetRefresher wires the client used for renewal. Set after client
// construction because the client itself consumes Token.
func (s *Source) SetRefresher(r Refresher) {
	s.refresherMu.Lock()
	s.refresher = r
	s.refresherMu.Unlock()
}

// Token returns the current access token, or "" when none is stored.
func (s *Source) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken
}

// Set replaces the cached pair and persists it. Used by the authorize flow.
func (s *Source) Set(pair models.TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()
	return s.store.Save(pair)
}

// needsRefresh reports whether the pair expires inside the refresh window.
// A zero expiry means the server gave no lifetime; never refresh on a timer
// then, only on an auth failure.
func (s *Source) needsRefresh(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair.RefreshToken == "" || s.pair.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.pair.ExpiresAt.Add(-refreshWindow))
}

// Refresh renews the pair now and persists the result.
func (s *Source) Refresh(ctx context.Context) error {
	s.refresherMu.Lock()
	r := s.refresher
	s.refresherMu.Unlock()
	if r == nil {
		return errors.New("no refresher configured")
	}

	s.mu.RLock()
	refreshToken := s.pair.RefreshToken
	s.mu.RUnlock()
	if refreshToken == "" {
		return ErrNoToken
	}

	pair, err := r.RefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	// Some providers rotate the refresh token only sometimes; keep the old
	// one when the response omits it.
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	if err := s.Set(pair); err != nil {
		return fmt.Errorf("persist refreshed token: %w", err)
	}
	slog.Info("user token refreshed", "expires_at", pair.ExpiresAt)
	return nil
}

// RunRefresher periodically checks expiry and refreshes when needed, with
// jitter so restarts don't align refreshes across instances. Blocks until
// the context is cancelled.
func (s *Source) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	slog.Debug("token refresher running", "interval", interval)
	for {
		var jitter time.Duration
		if n := int64(interval / 5); n > 0 {
			jitter = time.Duration(rand.Int63n(n))
		}
		select {
		case <-ctx.Done():
			slog.Debug("token refresher stopped")
			return
		case <-time.After(interval + jitter):
		}
		if !s.needsRefresh(time.Now()) {
			continue
		}
		if err := s.Refresh(ctx); err != nil {
			slog.Error("scheduled token refresh failed", "error", err)
		}
	}
}
