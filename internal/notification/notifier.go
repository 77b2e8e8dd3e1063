package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
)

// ErrNoChannel is returned by a Notifier when the recipient has no address
// on that notifier's channel. It is not a delivery failure.
var ErrNoChannel = errors.New("recipient has no address for this channel")

// Notifier delivers a stored notification to one user over one channel.
type Notifier interface {
	Notify(ctx context.Context, to models.User, notif models.Notification) error
}

// NotifierName returns a human-readable channel name for logs.
func NotifierName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}

func renderBody(notif models.Notification) string {
	var body strings.Builder
	body.WriteString(strings.TrimSpace(notif.Message))
	body.WriteString("\n\n")
	body.WriteString(fmt.Sprintf("Tipo: %s\n", notif.Kind))
	if notif.TaskID != nil {
		body.WriteString(fmt.Sprintf("Tarea: #%d\n", *notif.TaskID))
	}
	if notif.IncidentID != nil {
		body.WriteString(fmt.Sprintf("Incidencia: #%d\n", *notif.IncidentID))
	}
	body.WriteString(fmt.Sprintf("Fecha: %s\n", notif.CreatedAt.Format("2006-01-02 15:04 MST")))
	return body.String()
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int64("recipient_id", notif.RecipientID).
		Str("channel", channel).
		Msg("failed to deliver notification")
}
