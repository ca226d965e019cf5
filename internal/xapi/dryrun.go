package xapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// dryRunTransport simulates every operation with canned successes and zero
// network I/O. Selected by the DRY_RUN config flag so the full pipeline can
// be exercised without spending any API quota.
type dryRunTransport struct {
	seq atomic.Int64
}

// NewDryRunTransport returns a Transport that never touches the network.
func NewDryRunTransport() Transport {
	return &dryRunTransport{}
}

func (d *dryRunTransport) next(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().Unix(), d.seq.Add(1))
}

func (d *dryRunTransport) VerifyIdentity(ctx context.Context) (models.AccountIdentity, error) {
	slog.Info("dry-run: verify_identity simulated")
	return models.AccountIdentity{ID: "0", Username: "dry_run", Name: "Dry Run"}, nil
}

func (d *dryRunTransport) CreatePost(ctx context.Context, text string, mediaIDs []string) (models.Post, error) {
	id := d.next("dry_run")
	slog.Info("dry-run: create_post simulated", "text_length", len(text), "media_count", len(mediaIDs), "post_id", id)
	return models.Post{ID: id, Text: text, URL: "https://twitter.com/i/web/status/" + id}, nil
}

func (d *dryRunTransport) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	id := d.next("media")
	slog.Info("dry-run: upload_media simulated", "bytes", len(data), "mime", mimeType, "media_id", id)
	return id, nil
}

func (d *dryRunTransport) ListInboxEvents(ctx context.Context, sinceID string, maxResults int) (models.InboxPage, error) {
	slog.Debug("dry-run: list_inbox_events simulated", "since_id", sinceID, "max_results", maxResults)
	return models.InboxPage{}, nil
}

func (d *dryRunTransport) ListConversationEvents(ctx context.Context, conversationID string, maxResults int) (models.InboxPage, error) {
	slog.Debug("dry-run: list_conversation_events simulated", "conversation_id", conversationID)
	return models.InboxPage{}, nil
}

func (d *dryRunTransport) SendReply(ctx context.Context, conversationID, text, mediaID string) (string, error) {
	id := d.next("dm")
	slog.Info("dry-run: send_reply simulated", "conversation_id", conversationID, "dm_event_id", id)
	return id, nil
}

func (d *dryRunTransport) RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	slog.Info("dry-run: refresh_token simulated")
	return models.TokenPair{
		AccessToken:  d.next("token"),
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}, nil
}
