package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
)

// LogNotifier writes notifications to the service log. It is the fallback
// channel for deployments without e-mail or telegram.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("notifier", "log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, to models.User, notif models.Notification) error {
	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int64("recipient_id", to.ID).
		Str("recipient", to.Name).
		Str("title", notif.Title).
		Msg(notif.Message)
	return nil
}

func (n *LogNotifier) String() string {
	return "LogNotifier"
}
