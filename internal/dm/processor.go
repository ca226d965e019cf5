// Package dm mirrors X direct messages into a Telegram chat.
//
// The monitor polls the governed client for new inbox events, the dedup
// store filters out ones already handled, the processor normalizes each
// event into a notification, and the notifier delivers it to Telegram.
package dm

import (
	"fmt"
	"strings"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// Defaults substituted for missing optional fields so partial events never
// fail processing.
const (
	DefaultSenderName = "Unknown User"
	DefaultText       = "[no text]"
)

// Processor converts a raw DM event into a normalized notification.
// It is a pure transformation with no I/O.
type Processor struct{}

// NewProcessor creates a Processor.
func NewProcessor() *Processor { return &Processor{} }

// Process normalizes one event. Missing optional fields are replaced with
// defaults; it never fails on partial data.
func (p *Processor) Process(ev models.DMEvent) models.Notification {
	n := models.Notification{
		EventID:        ev.ID,
		SenderID:       ev.SenderID,
		SenderUsername: ev.SenderUsername,
		SenderName:     ev.SenderName,
		ConversationID: ev.ConversationID,
		Text:           ev.Text,
		CreatedAt:      ev.CreatedAt,
		Media:          ev.Media,
	}
	if n.SenderUsername == "" {
		n.SenderUsername = "user_" + ev.SenderID
	}
	if n.SenderName == "" {
		n.SenderName = DefaultSenderName
	}
	if strings.TrimSpace(n.Text) == "" {
		n.Text = DefaultText
	}
	return n
}

// FormatText renders the Telegram notification body for one notification.
func FormatText(n models.Notification) string {
	timeStr := "unknown time"
	if !n.CreatedAt.IsZero() {
		timeStr = n.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	var b strings.Builder
	b.WriteString("📩 *New X direct message*\n\n")
	fmt.Fprintf(&b, "👤 *From*: @%s (%s)\n", n.SenderUsername, n.SenderName)
	fmt.Fprintf(&b, "🕒 *Time*: %s\n", timeStr)
	fmt.Fprintf(&b, "💬 *Text*: %s\n", n.Text)
	if len(n.Media) > 0 {
		types := make([]string, 0, len(n.Media))
		for _, m := range n.Media {
			types = append(types, m.Type)
		}
		fmt.Fprintf(&b, "📎 *Media*: %d attachment(s) (%s)\n", len(n.Media), strings.Join(types, ", "))
	}
	fmt.Fprintf(&b, "\n🔗 Event ID: %s", n.EventID)
	return b.String()
}
