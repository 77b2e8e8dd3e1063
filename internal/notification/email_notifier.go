package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/stanstork/taskwatch/internal/config"
	"github.com/stanstork/taskwatch/internal/models"
)

type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, logger zerolog.Logger) (*EmailNotifier, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email notifier")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email notifier")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailNotifier{
		dialer: gomail.NewDialer(host, port, strings.TrimSpace(cfg.Username), cfg.Password),
		from:   from,
		logger: logger.With().Str("notifier", "email").Logger(),
	}, nil
}

func (n *EmailNotifier) Notify(_ context.Context, to models.User, notif models.Notification) error {
	address := strings.TrimSpace(to.Email)
	if address == "" {
		return ErrNoChannel
	}

	m := n.buildMessage(to, notif)
	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to user %d: %w", to.ID, err)
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Str("recipient", address).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) buildMessage(to models.User, notif models.Notification) *gomail.Message {
	subject := fmt.Sprintf("[TaskWatch] %s", strings.TrimSpace(notif.Title))
	if subject == "[TaskWatch] " {
		subject = "[TaskWatch] Notificación"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", strings.TrimSpace(to.Email), to.Name)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", renderBody(notif))
	return m
}

func (n *EmailNotifier) String() string {
	return "EmailNotifier"
}
