package xapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/metrics"
	"github.com/LunaSea00/tg-twitter-sync/internal/models"
	"github.com/LunaSea00/tg-twitter-sync/internal/ratelimit"
)

// Operation keys. Each endpoint is governed independently so a lockout on
// one never delays the others.
const (
	OpVerifyIdentity    = "verify_identity"
	OpCreatePost        = "create_post"
	OpUploadMedia       = "upload_media"
	OpListInbox         = "list_inbox_events"
	OpListConversation  = "list_conversation_events"
	OpSendReply         = "send_reply"
	OpRefreshToken      = "refresh_token"
	conversationCacheTL = 2 * time.Minute
)

// Config holds client behavior flags.
type Config struct {
	// SkipVerification bypasses both verification probes entirely; they
	// report success without any network call.
	SkipVerification bool
	// DryRun replaces the transport with a no-op simulator.
	DryRun bool
}

// Opts holds constructor options for the Client.
type Opts struct {
	transportFactory func() Transport
	userToken        func() string
}

// Option defines a configuration option for the Client.
type Option func(*Opts)

// WithTransportFactory overrides how the underlying transport is built on
// first use. Used by tests and by dry-run wiring.
func WithTransportFactory(f func() Transport) Option {
	return func(o *Opts) { o.transportFactory = f }
}

// WithUserTokenSource supplies the current OAuth2 user access token for DM
// endpoints, consulted per request.
func WithUserTokenSource(f func() string) Option {
	return func(o *Opts) { o.userToken = f }
}

// verifySlot is one independent memoization slot for a verification probe.
// verified is tri-state: nil is unknown, otherwise the remembered outcome.
// The remembered error is returned alongside a remembered false so callers
// see the original classification without a fresh probe.
type verifySlot struct {
	mu       sync.Mutex
	verified *bool
	err      error
}

func (s *verifySlot) set(ok bool, err error) {
	s.verified = &ok
	s.err = err
}

func (s *verifySlot) reset() {
	s.verified = nil
	s.err = nil
}

// Client owns the X credentials and exposes the governed operations. It
// performs no network I/O at construction: the transport is built exactly
// once, on the first operation that needs it.
type Client struct {
	creds models.Credentials
	cfg   Config
	gov   *ratelimit.Governor

	// Lazy transport holder. nil means unconstructed; construction happens
	// under transportMu so racing first uses build exactly one transport.
	transportMu sync.Mutex
	tr          Transport
	buildCount  int
	factory     func() Transport

	connection verifySlot
	dmAccess   verifySlot
}

// NewClient constructs a Client. No network I/O happens here.
func NewClient(creds models.Credentials, cfg Config, gov *ratelimit.Governor, opts ...Option) *Client {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{creds: creds, cfg: cfg, gov: gov}
	switch {
	case o.transportFactory != nil:
		c.factory = o.transportFactory
	case cfg.DryRun:
		c.factory = NewDryRunTransport
	default:
		userToken := o.userToken
		c.factory = func() Transport { return NewHTTPTransport(creds, userToken) }
	}
	slog.Debug("x client created (lazy mode)", "dry_run", cfg.DryRun, "skip_verification", cfg.SkipVerification,
		"credentials", creds.Redacted())
	return c
}

// transport returns the shared transport, constructing it on first call.
// Idempotent and safe under concurrent first use.
func (c *Client) transport() Transport {
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	if c.tr == nil {
		c.tr = c.factory()
		c.buildCount++
		slog.Info("x transport constructed on first use")
	}
	return c.tr
}

// verify runs one memoized verification probe. The probe itself goes
// through the governor under the slot's operation key; at most one network
// probe happens per slot per process, absent an explicit reset.
func (c *Client) verify(ctx context.Context, slot *verifySlot, name, opKey string, probe func(ctx context.Context, tr Transport) error) (bool, error) {
	if c.cfg.SkipVerification {
		slot.mu.Lock()
		slot.set(true, nil)
		slot.mu.Unlock()
		slog.Debug("verification skipped by config", "slot", name)
		return true, nil
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.verified != nil {
		return *slot.verified, slot.err
	}

	slog.Info("first use, verifying", "slot", name)
	tr := c.transport()
	_, err := c.gov.Execute(ctx, opKey, func(ctx context.Context) (any, error) {
		return nil, probe(ctx, tr)
	})
	if err == nil {
		slot.set(true, nil)
		slog.Info("verification succeeded", "slot", name)
		return true, nil
	}

	if !models.IsKind(err, models.KindRateLimited) &&
		!models.IsKind(err, models.KindAuthenticationFailed) &&
		!models.IsKind(err, models.KindPermissionDenied) &&
		!models.IsKind(err, models.KindTransientNetwork) &&
		!models.IsKind(err, models.KindPermanentClientError) &&
		!models.IsKind(err, models.KindRetriesExhausted) {
		err = &models.APIError{Kind: models.KindVerificationUnknown, Op: opKey, Err: err}
	}
	slot.set(false, err)
	slog.Warn("verification failed", "slot", name, "error", err)
	return false, err
}

// VerifyConnection checks (once) that the credentials can reach the API.
func (c *Client) VerifyConnection(ctx context.Context) (bool, error) {
	return c.verify(ctx, &c.connection, "connection", OpVerifyIdentity,
		func(ctx context.Context, tr Transport) error {
			_, err := tr.VerifyIdentity(ctx)
			return err
		})
}

// VerifyDMAccess checks (once) that the user token can read the DM inbox.
// The probe fetches a single event, the same call the monitor will make.
func (c *Client) VerifyDMAccess(ctx context.Context) (bool, error) {
	return c.verify(ctx, &c.dmAccess, "dm_access", OpListInbox,
		func(ctx context.Context, tr Transport) error {
			_, err := tr.ListInboxEvents(ctx, "", 1)
			return err
		})
}

// ResetConnectionVerification forces the next VerifyConnection to probe.
func (c *Client) ResetConnectionVerification() {
	c.connection.mu.Lock()
	c.connection.reset()
	c.connection.mu.Unlock()
	c.gov.InvalidateCache(OpVerifyIdentity)
	slog.Info("connection verification reset to unknown")
}

// ResetDMVerification forces the next VerifyDMAccess to probe.
func (c *Client) ResetDMVerification() {
	c.dmAccess.mu.Lock()
	c.dmAccess.reset()
	c.dmAccess.mu.Unlock()
	slog.Info("dm access verification reset to unknown")
}

// CreatePost publishes a post, optionally with previously uploaded media.
// No pre-flight verification: the call itself reports a classified error,
// so no quota is spent on a probe that duplicates the real call.
func (c *Client) CreatePost(ctx context.Context, text string, mediaIDs []string) (models.Post, error) {
	if err := models.ValidatePost(text, mediaIDs); err != nil {
		return models.Post{}, &models.APIError{Kind: models.KindPermanentClientError, Op: OpCreatePost, Err: err}
	}
	tr := c.transport()
	post, err := ratelimit.Execute(ctx, c.gov, OpCreatePost, func(ctx context.Context) (models.Post, error) {
		return tr.CreatePost(ctx, text, mediaIDs)
	})
	if err != nil {
		metrics.PostsFailed.Inc()
		return models.Post{}, err
	}
	metrics.PostsSent.Inc()
	slog.Info("post created", "post_id", post.ID)
	return post, nil
}

// UploadMedia uploads raw media bytes and returns the media id.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	tr := c.transport()
	return ratelimit.Execute(ctx, c.gov, OpUploadMedia, func(ctx context.Context) (string, error) {
		return tr.UploadMedia(ctx, data, mimeType)
	})
}

// ListInboxEvents fetches the most recent DM events. Deliberately
// uncached: the poll loop must observe new events, and dedup handles
// re-fetched ones.
func (c *Client) ListInboxEvents(ctx context.Context, sinceID string, maxResults int) (models.InboxPage, error) {
	tr := c.transport()
	return ratelimit.Execute(ctx, c.gov, OpListInbox, func(ctx context.Context) (models.InboxPage, error) {
		return tr.ListInboxEvents(ctx, sinceID, maxResults)
	})
}

// ListConversationEvents fetches events for one conversation. Served from
// the governor's TTL cache when enabled; these are user-initiated views
// where a briefly stale page beats spending quota.
func (c *Client) ListConversationEvents(ctx context.Context, conversationID string, maxResults int) (models.InboxPage, error) {
	tr := c.transport()
	cacheKey := conversationID
	return ratelimit.ExecuteCached(ctx, c.gov, OpListConversation, cacheKey, conversationCacheTL,
		func(ctx context.Context) (models.InboxPage, error) {
			return tr.ListConversationEvents(ctx, conversationID, maxResults)
		})
}

// SendReply sends a DM into an existing conversation.
func (c *Client) SendReply(ctx context.Context, conversationID, text, mediaID string) (string, error) {
	tr := c.transport()
	return ratelimit.Execute(ctx, c.gov, OpSendReply, func(ctx context.Context) (string, error) {
		return tr.SendReply(ctx, conversationID, text, mediaID)
	})
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	tr := c.transport()
	return ratelimit.Execute(ctx, c.gov, OpRefreshToken, func(ctx context.Context) (models.TokenPair, error) {
		return tr.RefreshToken(ctx, refreshToken)
	})
}
