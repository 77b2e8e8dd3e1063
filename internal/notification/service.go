package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
)

// ErrNoRecipient is returned when a notification has nobody to go to, for
// example an incident whose reporter was never recorded.
var ErrNoRecipient = errors.New("notification has no recipient")

type Event struct {
	RecipientID int64
	Kind        models.NotificationKind
	TaskID      *int64
	IncidentID  *int64
	Title       string
	Message     string
}

// Service is what the engine talks to. Publishing only writes an outbox
// row; delivery happens later in the dispatcher, so a broken channel can
// never undo the state change that caused the notification.
type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyTaskAssigned(ctx context.Context, task models.Task) error
	NotifyAlert(ctx context.Context, alert models.Alert, task models.Task) error
	NotifyIncidentReported(ctx context.Context, incident models.Incident, origin models.Task, coordinatorID int64) error
	NotifyIncidentManaged(ctx context.Context, incident models.Incident, solution models.Task) error
	NotifyIncidentResolved(ctx context.Context, incident models.Incident, origin models.Task) error
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
}

type service struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Kind == "" {
		return models.Notification{}, fmt.Errorf("notification kind is required")
	}
	if evt.RecipientID == 0 {
		return models.Notification{}, ErrNoRecipient
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Kind)
	}

	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		RecipientID: evt.RecipientID,
		Kind:        evt.Kind,
		TaskID:      evt.TaskID,
		IncidentID:  evt.IncidentID,
		Title:       title,
		Message:     strings.TrimSpace(evt.Message),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(evt.Kind)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	s.logger.Debug().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int64("recipient_id", notif.RecipientID).
		Msg("notification queued")
	return notif, nil
}

func (s *service) NotifyTaskAssigned(ctx context.Context, task models.Task) error {
	if !task.IsAssigned() {
		return ErrNoRecipient
	}
	_, err := s.Publish(ctx, Event{
		RecipientID: *task.AssignedTo,
		Kind:        models.NotificationTaskAssigned,
		TaskID:      &task.ID,
		Title:       fmt.Sprintf("Nueva tarea asignada: %s", taskName(task)),
		Message:     fmt.Sprintf("Se te asignó la tarea %q%s.", taskName(task), dueSuffix(task)),
	})
	return err
}

func (s *service) NotifyAlert(ctx context.Context, alert models.Alert, task models.Task) error {
	kind := models.NotificationAlertPreventive
	title := fmt.Sprintf("Alerta preventiva: %s", taskName(task))
	if alert.Kind == models.AlertKindCritical {
		kind = models.NotificationAlertCritical
		title = fmt.Sprintf("Alerta crítica: %s", taskName(task))
	}
	_, err := s.Publish(ctx, Event{
		RecipientID: alert.UserID,
		Kind:        kind,
		TaskID:      &task.ID,
		Title:       title,
		Message:     alert.Message,
	})
	return err
}

func (s *service) NotifyIncidentReported(ctx context.Context, incident models.Incident, origin models.Task, coordinatorID int64) error {
	_, err := s.Publish(ctx, Event{
		RecipientID: coordinatorID,
		Kind:        models.NotificationIncidentReported,
		TaskID:      &origin.ID,
		IncidentID:  &incident.ID,
		Title:       fmt.Sprintf("Incidencia reportada en %s", taskName(origin)),
		Message: fmt.Sprintf("Se reportó una incidencia en la tarea %q: %s. La tarea quedó en pausa.",
			taskName(origin), strings.TrimSpace(incident.Description)),
	})
	return err
}

func (s *service) NotifyIncidentManaged(ctx context.Context, incident models.Incident, solution models.Task) error {
	if incident.ReporterID == nil {
		return ErrNoRecipient
	}
	_, err := s.Publish(ctx, Event{
		RecipientID: *incident.ReporterID,
		Kind:        models.NotificationIncidentManaged,
		TaskID:      &solution.ID,
		IncidentID:  &incident.ID,
		Title:       fmt.Sprintf("Incidencia #%d en gestión", incident.ID),
		Message: fmt.Sprintf("Tu incidencia #%d está siendo gestionada mediante la tarea %q.",
			incident.ID, taskName(solution)),
	})
	return err
}

func (s *service) NotifyIncidentResolved(ctx context.Context, incident models.Incident, origin models.Task) error {
	if incident.ReporterID == nil {
		return ErrNoRecipient
	}
	_, err := s.Publish(ctx, Event{
		RecipientID: *incident.ReporterID,
		Kind:        models.NotificationIncidentResolved,
		TaskID:      &incident.TaskID,
		IncidentID:  &incident.ID,
		Title:       fmt.Sprintf("Incidencia #%d resuelta", incident.ID),
		Message: fmt.Sprintf("Tu incidencia #%d sobre la tarea %q fue resuelta.",
			incident.ID, taskName(origin)),
	})
	return err
}

func (s *service) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	return s.repo.ListForRecipient(ctx, recipientID, limit)
}

func taskName(task models.Task) string {
	if trimmed := strings.TrimSpace(task.Title); trimmed != "" {
		return trimmed
	}
	return fmt.Sprintf("#%d", task.ID)
}

func dueSuffix(task models.Task) string {
	if task.DueDate == nil {
		return ""
	}
	return fmt.Sprintf(" con vencimiento el %s", task.DueDate.Format("2006-01-02"))
}
