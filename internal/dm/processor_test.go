package dm

import (
	"strings"
	"testing"
	"time"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

func TestProcessFillsDefaults(t *testing.T) {
	p := NewProcessor()
	n := p.Process(models.DMEvent{ID: "e1", SenderID: "12345"})

	if n.SenderUsername != "user_12345" {
		t.Errorf("SenderUsername = %q, want user_12345", n.SenderUsername)
	}
	if n.SenderName != DefaultSenderName {
		t.Errorf("SenderName = %q, want %q", n.SenderName, DefaultSenderName)
	}
	if n.Text != DefaultText {
		t.Errorf("Text = %q, want %q", n.Text, DefaultText)
	}
}

func TestProcessKeepsProvidedFields(t *testing.T) {
	p := NewProcessor()
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	ev := models.DMEvent{
		ID:             "e1",
		Text:           "hello there",
		SenderID:       "1",
		SenderUsername: "alice",
		SenderName:     "Alice",
		CreatedAt:      at,
		Media:          []models.MediaRef{{MediaKey: "m1", Type: "photo"}},
	}
	n := p.Process(ev)
	if n.SenderUsername != "alice" || n.SenderName != "Alice" || n.Text != "hello there" {
		t.Errorf("provided fields must pass through unchanged: %+v", n)
	}
	if len(n.Media) != 1 {
		t.Errorf("media must pass through, got %d", len(n.Media))
	}
	if !n.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", n.CreatedAt, at)
	}
}

func TestFormatText(t *testing.T) {
	n := models.Notification{
		EventID:        "e1",
		SenderUsername: "alice",
		SenderName:     "Alice",
		Text:           "hello",
		CreatedAt:      time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Media:          []models.MediaRef{{Type: "photo"}, {Type: "video"}},
	}
	out := FormatText(n)
	for _, want := range []string{"@alice", "Alice", "hello", "2025-06-01 09:30:00 UTC", "2 attachment(s)", "photo, video", "e1"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted text missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTextZeroTime(t *testing.T) {
	out := FormatText(models.Notification{EventID: "e1", SenderUsername: "alice", Text: "x"})
	if !strings.Contains(out, "unknown time") {
		t.Errorf("zero CreatedAt should render as unknown time:\n%s", out)
	}
}
