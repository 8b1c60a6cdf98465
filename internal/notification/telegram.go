package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// maxTelegramText is Telegram's limit for one message.
const maxTelegramText = 4096

// Telegram sends channel notifications through a bot.
type Telegram struct {
	b   *bot.Bot
	log *slog.Logger
}

// NewTelegram creates the bot client without contacting Telegram.
func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{b: b, log: logger.With(slog.String("op", "notification.Telegram"))}, nil
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range splitText(text, maxTelegramText) {
		if _, err := t.b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: chunk}); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	t.log.Debug("telegram message sent", "chat_id", chatID)
	return nil
}

func splitText(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var out []string
	for len(runes) > 0 {
		n := limit
		if len(runes) < n {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
