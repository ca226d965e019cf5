package dm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// Sender is the chat-platform capability consumed by the notifier. The
// Telegram bot implements it; tests use a recording fake.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhotoURL(ctx context.Context, chatID int64, url, caption string) error
}

// Notifier delivers a normalized notification to the configured Telegram
// destination, including any attached media.
type Notifier struct {
	sender Sender
	chatID int64
}

// NewNotifier creates a Notifier targeting chatID.
func NewNotifier(sender Sender, chatID int64) *Notifier {
	return &Notifier{sender: sender, chatID: chatID}
}

// Deliver sends the notification text and then each media attachment.
// Media failure never suppresses the text: a failed attachment is reported
// inline as a follow-up note instead.
func (n *Notifier) Deliver(ctx context.Context, note models.Notification) error {
	if err := n.sender.SendText(ctx, n.chatID, FormatText(note)); err != nil {
		return fmt.Errorf("deliver notification %s: %w", note.EventID, err)
	}

	for _, m := range note.Media {
		url := m.BestURL()
		if url == "" {
			slog.Warn("media attachment has no usable url", "event_id", note.EventID, "media_key", m.MediaKey)
			continue
		}
		caption := fmt.Sprintf("📎 %s from X direct message", m.Type)
		if err := n.sender.SendPhotoURL(ctx, n.chatID, url, caption); err != nil {
			slog.Warn("media delivery failed, falling back to link", "event_id", note.EventID, "error", err)
			fallback := fmt.Sprintf("📎 media (%s) could not be forwarded: %s", m.Type, url)
			if err := n.sender.SendText(ctx, n.chatID, fallback); err != nil {
				slog.Error("media fallback text failed", "event_id", note.EventID, "error", err)
			}
		}
	}

	slog.Info("dm notification delivered", "event_id", note.EventID, "media_count", len(note.Media))
	return nil
}
