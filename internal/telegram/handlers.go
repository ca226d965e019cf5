package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LunaSea00/tg-twitter-sync/internal/confirm"
	"github.com/LunaSea00/tg-twitter-sync/internal/dm"
	"github.com/LunaSea00/tg-twitter-sync/internal/media"
	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// Poster is the slice of the X client the handler publishes through.
type Poster interface {
	VerifyConnection(ctx context.Context) (bool, error)
	CreatePost(ctx context.Context, text string, mediaIDs []string) (models.Post, error)
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
}

// StatusSource reports the DM monitor state for the /status command.
type StatusSource interface {
	Status() dm.Status
}

// Handler routes Telegram updates: commands, draft messages, and
// confirm/cancel button callbacks. Only the configured user is served.
type Handler struct {
	bot     *Bot
	poster  Poster
	drafts  *confirm.Registry
	fetcher *media.Fetcher
	status  StatusSource
	userID  int64
	dryRun  bool
}

// NewHandler creates a Handler. userID is the only Telegram account allowed
// to interact with the bot.
func NewHandler(bot *Bot, poster Poster, drafts *confirm.Registry, fetcher *media.Fetcher, status StatusSource, userID int64, dryRun bool) *Handler {
	return &Handler{
		bot:     bot,
		poster:  poster,
		drafts:  drafts,
		fetcher: fetcher,
		status:  status,
		userID:  userID,
		dryRun:  dryRun,
	}
}

// Run consumes the update channel until the context is cancelled.
func (h *Handler) Run(ctx context.Context) {
	updates := h.bot.updates()
	slog.Info("telegram handler running", "authorized_user", h.userID)
	for {
		select {
		case <-ctx.Done():
			h.bot.stop()
			slog.Info("telegram handler stopped")
			return
		case update, ok := <-updates:
			if !ok {
				slog.Info("telegram update channel closed")
				return
			}
			h.dispatch(ctx, update)
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if !h.authorized(update.CallbackQuery.From.ID) {
			return
		}
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		// Channel posts carry no From.
		if update.Message.From == nil || !h.authorized(update.Message.From.ID) {
			return
		}
		if update.Message.IsCommand() {
			h.handleCommand(ctx, update.Message)
			return
		}
		h.handleDraft(ctx, update.Message)
	}
}

// authorized drops updates from anyone but the configured user. Denials
// are logged but never answered, so the bot stays silent to strangers.
func (h *Handler) authorized(from int64) bool {
	if from == h.userID {
		return true
	}
	slog.Warn("update from unauthorized user ignored", "from_id", from)
	return false
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		h.reply(ctx, chatID, "👋 Send me text or a photo and I will post it to X after you confirm.\nUse /help for commands.")
	case "help":
		h.reply(ctx, chatID, strings.Join([]string{
			"*Commands*",
			"/start – intro",
			"/status – connection and DM monitor state",
			"/cancel – discard all pending drafts",
			"",
			"Send text or a photo with caption to draft a post.",
		}, "\n"))
	case "status":
		h.replyStatus(ctx, chatID)
	case "cancel":
		n := h.drafts.DiscardAll()
		if n == 0 {
			h.reply(ctx, chatID, "Nothing pending.")
			return
		}
		h.reply(ctx, chatID, fmt.Sprintf("🗑 Discarded %d pending draft(s).", n))
	default:
		h.reply(ctx, chatID, "Unknown command. Try /help.")
	}
}

func (h *Handler) replyStatus(ctx context.Context, chatID int64) {
	var b strings.Builder
	b.WriteString("*Status*\n")
	if _, err := h.poster.VerifyConnection(ctx); err != nil {
		fmt.Fprintf(&b, "🔌 X connection: ❌ %s\n", userFacing(err))
	} else {
		b.WriteString("🔌 X connection: ✅\n")
	}
	st := h.status.Status()
	fmt.Fprintf(&b, "📩 DM monitor: %s (every %s, %d processed)\n", st.State, st.PollInterval, st.Processed)
	fmt.Fprintf(&b, "📝 Pending drafts: %d", h.drafts.Pending())
	if h.dryRun {
		b.WriteString("\n🧪 Dry-run mode: posts are simulated")
	}
	h.reply(ctx, chatID, b.String())
}

// handleDraft turns an incoming text or photo message into a pending draft
// and shows a confirmation preview.
func (h *Handler) handleDraft(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := msg.Text
	var mediaIDs []string

	if len(msg.Photo) > 0 {
		text = msg.Caption
		// Sizes are ordered smallest first; upload the largest rendition.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		id, err := h.uploadPhoto(ctx, fileID)
		if err != nil {
			slog.Error("photo upload failed", "error", err)
			h.reply(ctx, chatID, "❌ Could not prepare the photo: "+userFacing(err))
			return
		}
		mediaIDs = []string{id}
	}

	if err := models.ValidatePost(text, mediaIDs); err != nil {
		switch {
		case len(mediaIDs) == 0 && strings.TrimSpace(text) == "":
			h.reply(ctx, chatID, "Send some text or a photo to post.")
		default:
			h.reply(ctx, chatID, "❌ "+err.Error())
		}
		return
	}

	token := h.drafts.Add(text, mediaIDs, chatID, 0)
	preview := buildPreview(text, len(mediaIDs), h.dryRun)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Post", "confirm:"+token),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel:"+token),
		),
	)
	if _, err := h.bot.sendWithKeyboard(chatID, preview, keyboard); err != nil {
		slog.Error("preview send failed", "error", err)
		h.drafts.Discard(token)
	}
}

// uploadPhoto resolves, downloads and uploads one Telegram photo, returning
// the X media id.
func (h *Handler) uploadPhoto(ctx context.Context, fileID string) (string, error) {
	url, err := h.bot.fileURL(fileID)
	if err != nil {
		return "", err
	}
	data, mimeType, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return h.poster.UploadMedia(ctx, data, mimeType)
}

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	action, token, ok := strings.Cut(cq.Data, ":")
	if !ok || cq.Message == nil {
		h.bot.answerCallback(cq.ID, "")
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	switch action {
	case "cancel":
		h.drafts.Discard(token)
		h.bot.answerCallback(cq.ID, "Cancelled")
		h.bot.editText(chatID, messageID, "❌ Draft discarded.")
	case "confirm":
		draft, ok := h.drafts.Claim(token)
		if !ok {
			h.bot.answerCallback(cq.ID, "Expired")
			h.bot.editText(chatID, messageID, "⌛ This draft expired or was already handled.")
			return
		}
		h.bot.answerCallback(cq.ID, "Posting…")
		post, err := h.poster.CreatePost(ctx, draft.Text, draft.MediaIDs)
		if err != nil {
			slog.Error("post publish failed", "error", err)
			h.bot.editText(chatID, messageID, "❌ Post failed: "+userFacing(err))
			return
		}
		done := "✅ Posted to X."
		if post.URL != "" {
			done = fmt.Sprintf("✅ Posted to X.\n%s", post.URL)
		}
		if h.dryRun {
			done = "🧪 Dry-run: post simulated, nothing was published."
		}
		h.bot.editText(chatID, messageID, done)
	default:
		h.bot.answerCallback(cq.ID, "")
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.bot.SendText(ctx, chatID, text); err != nil {
		slog.Error("telegram reply failed", "error", err)
	}
}

func buildPreview(text string, mediaCount int, dryRun bool) string {
	var b strings.Builder
	b.WriteString("📝 *Ready to post*\n\n")
	if strings.TrimSpace(text) != "" {
		fmt.Fprintf(&b, "%s\n\n", text)
	}
	if mediaCount > 0 {
		fmt.Fprintf(&b, "📎 %d photo(s) attached\n", mediaCount)
	}
	fmt.Fprintf(&b, "_%d/%d characters_", len([]rune(text)), models.MaxPostLength)
	if dryRun {
		b.WriteString("\n🧪 _dry-run: will be simulated_")
	}
	return b.String()
}

// userFacing maps a classified API error to a short message safe to show
// in chat. Raw error text and credentials never reach the user.
func userFacing(err error) string {
	switch {
	case models.IsKind(err, models.KindRateLimited):
		if ra := models.RetryAfter(err); ra > 0 {
			return fmt.Sprintf("X is rate limiting us, try again in ~%s.", ra.Round(time.Second))
		}
		return "X is rate limiting us, please wait a bit and retry."
	case models.IsKind(err, models.KindRetriesExhausted):
		return "X kept refusing after several attempts, please try again later."
	case models.IsKind(err, models.KindAuthenticationFailed):
		return "X rejected our credentials, the operator needs to reconfigure them."
	case models.IsKind(err, models.KindPermissionDenied):
		return "our X app lacks permission for this, the operator needs to check its access level."
	case models.IsKind(err, models.KindTransientNetwork):
		return "a network hiccup reaching X, please retry."
	default:
		return "an unexpected error occurred, please try again."
	}
}
