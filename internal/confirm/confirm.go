// Package confirm holds posts awaiting user confirmation.
//
// Every outbound post goes through a two-step flow: the draft is parked
// here under an opaque token, the user sees a preview with confirm/cancel
// buttons, and only a confirm callback releases it for publishing. Drafts
// expire after a TTL so an ignored preview never posts later by accident.
package confirm

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a draft stays claimable.
const DefaultTTL = 10 * time.Minute

// Draft is one pending post.
type Draft struct {
	Token     string
	Text      string
	MediaIDs  []string
	ChatID    int64
	MessageID int
	CreatedAt time.Time
}

// Registry is a TTL-bounded in-memory registry of pending drafts.
type Registry struct {
	mu     sync.Mutex
	ttl    time.Duration
	drafts map[string]Draft
	now    func() time.Time
}

// NewRegistry creates a Registry. ttl <= 0 uses DefaultTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		ttl:    ttl,
		drafts: make(map[string]Draft),
		now:    time.Now,
	}
}

// Add parks a draft and returns its token.
func (r *Registry) Add(text string, mediaIDs []string, chatID int64, messageID int) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.drafts[token] = Draft{
		Token:     token,
		Text:      text,
		MediaIDs:  mediaIDs,
		ChatID:    chatID,
		MessageID: messageID,
		CreatedAt: r.now(),
	}
	r.mu.Unlock()
	slog.Debug("draft parked for confirmation", "token", token, "media_count", len(mediaIDs))
	return token
}

// Claim removes and returns the draft for token. The second return is false
// when the token is unknown or the draft has expired; a draft can be
// claimed at most once, so double-tapping confirm posts only once.
func (r *Registry) Claim(token string) (Draft, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drafts[token]
	if !ok {
		return Draft{}, false
	}
	delete(r.drafts, token)
	if r.now().Sub(d.CreatedAt) > r.ttl {
		slog.Debug("draft expired at claim", "token", token)
		return Draft{}, false
	}
	return d, true
}

// Discard drops the draft for token if present. Used by the cancel button
// and the /cancel command.
func (r *Registry) Discard(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drafts[token]; !ok {
		return false
	}
	delete(r.drafts, token)
	return true
}

// DiscardAll drops every pending draft and returns how many were dropped.
func (r *Registry) DiscardAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.drafts)
	r.drafts = make(map[string]Draft)
	return n
}

// Sweep removes expired drafts. Called periodically from the scheduler.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for token, d := range r.drafts {
		if d.CreatedAt.Before(cutoff) {
			delete(r.drafts, token)
			swept++
		}
	}
	if swept > 0 {
		slog.Debug("expired drafts swept", "count", swept)
	}
	return swept
}

// Pending reports the number of parked drafts.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}
