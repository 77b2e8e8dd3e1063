package notification

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/models"
)

// TelegramNotifier pushes notifications to users who linked a telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

func NewTelegramNotifier(cfg config.TelegramConfig, logger zerolog.Logger) (*TelegramNotifier, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("token is required for telegram notifier")
	}
	endpoint := strings.TrimSpace(cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:    bot,
		logger: logger.With().Str("notifier", "telegram").Str("bot", bot.Self.UserName).Logger(),
	}, nil
}

func (n *TelegramNotifier) Notify(_ context.Context, to models.User, notif models.Notification) error {
	if to.TelegramChatID == nil || *to.TelegramChatID == 0 {
		return ErrNoChannel
	}

	text := renderBody(notif)
	if title := strings.TrimSpace(notif.Title); title != "" {
		text = title + "\n\n" + text
	}
	msg := tgbotapi.NewMessage(*to.TelegramChatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message to user %d: %w", to.ID, err)
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int64("chat_id", *to.TelegramChatID).
		Msg("telegram notification sent")
	return nil
}

func (n *TelegramNotifier) String() string {
	return "TelegramNotifier"
}
