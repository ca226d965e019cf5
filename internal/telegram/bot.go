// Package telegram is the chat-facing side of the bridge: it receives
// drafts and commands from the authorized user and delivers DM
// notifications back into the chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/LunaSea00/tg-twitter-sync/internal/dm"
)

// Bot wraps the Telegram Bot API connection.
type Bot struct {
	api *tgbotapi.BotAPI
}

// Compile-time check that Bot implements the notifier's sender contract.
var _ dm.Sender = (*Bot)(nil)

// NewBot connects to the Telegram Bot API with the given token.
func NewBot(token string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	slog.Info("telegram bot connected", "username", api.Self.UserName)
	return &Bot{api: api}, nil
}

// Username returns the bot's own Telegram username.
func (b *Bot) Username() string { return b.api.Self.UserName }

// SendText sends a Markdown-formatted text message.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendPhotoURL sends a photo by URL with a caption. Telegram fetches the
// URL itself, so the bytes never pass through this process.
func (b *Bot) SendPhotoURL(ctx context.Context, chatID int64, url, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("telegram send photo: %w", err)
	}
	return nil
}

// sendWithKeyboard sends a Markdown message with an inline keyboard and
// returns the sent message id, used to edit the preview after a button tap.
func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram send preview: %w", err)
	}
	return sent.MessageID, nil
}

// editText replaces a previously sent message's text and drops its keyboard.
func (b *Bot) editText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		slog.Warn("telegram edit failed", "message_id", messageID, "error", err)
	}
}

// answerCallback acknowledges a button tap so the client stops its spinner.
func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Warn("telegram callback answer failed", "error", err)
	}
}

// fileURL resolves a Telegram file id to a downloadable URL.
func (b *Bot) fileURL(fileID string) (string, error) {
	f, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("telegram get file: %w", err)
	}
	return f.Link(b.api.Token), nil
}

// updates opens the long-poll update channel.
func (b *Bot) updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return b.api.GetUpdatesChan(u)
}

// stop closes the update channel.
func (b *Bot) stop() {
	b.api.StopReceivingUpdates()
}
