package alerts

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers alerts through a Telegram bot to a single chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender validates the credentials and connects the bot.
// The constructor performs a getMe round trip, so it fails fast on a
// bad token.
func NewTelegramSender(botToken string, chatID int64) (*TelegramSender, error) {
	if botToken == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Name returns the sender name.
func (s *TelegramSender) Name() string {
	return "telegram"
}

// Send posts the alert message to the configured chat.
// Messages go out as plain text; token names are user-controlled and
// unescaped markdown in them would break delivery.
func (s *TelegramSender) Send(ctx context.Context, n Notification, message string) error {
	msg := tgbotapi.NewMessage(s.chatID, message)
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
