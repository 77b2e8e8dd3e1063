package notification

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
)

// Fanout delivers a notification over every configured channel.
type Fanout struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewFanout(logger zerolog.Logger, notifiers ...Notifier) *Fanout {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &Fanout{
		notifiers: active,
		logger:    logger.With().Str("component", "notification_fanout").Logger(),
	}
}

// Deliver succeeds when at least one channel accepted the notification.
// It returns ErrNoChannel when no channel could address the recipient, and
// the joined channel errors otherwise.
func (f *Fanout) Deliver(ctx context.Context, to models.User, notif models.Notification) error {
	var (
		delivered int
		failures  []error
	)
	for _, notifier := range f.notifiers {
		err := notifier.Notify(ctx, to, notif)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrNoChannel):
		default:
			logNotifyError(f.logger, err, NotifierName(notifier), notif)
			failures = append(failures, err)
		}
	}
	if delivered > 0 {
		return nil
	}
	if len(failures) == 0 {
		return ErrNoChannel
	}
	return errors.Join(failures...)
}

func (f *Fanout) Channels() []string {
	names := make([]string, 0, len(f.notifiers))
	for _, n := range f.notifiers {
		names = append(names, NotifierName(n))
	}
	return names
}
