package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
	"github.com/stanstork/taskwatch/internal/risk"
)

// AlertKey identifies one alert slot. Preventive alerts ignore UserID:
// there is one per task per day.
type AlertKey struct {
	TaskID int64
	UserID int64
	Kind   models.AlertKind
	Day    time.Time
}

func (k AlertKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%s", k.TaskID, k.UserID, k.Kind, k.Day.Format("2006-01-02"))
}

// Deduplicator guarantees at most one alert per key per calendar day.
type Deduplicator struct {
	alerts repository.AlertRepository
}

func NewDeduplicator(alerts repository.AlertRepository) *Deduplicator {
	return &Deduplicator{alerts: alerts}
}

// ShouldEmit is advisory. Callers that go on to write must use Record,
// which decides atomically.
func (d *Deduplicator) ShouldEmit(ctx context.Context, key AlertKey) (bool, error) {
	exists, err := d.alerts.Exists(ctx, key.TaskID, key.UserID, key.Kind, risk.DateOnly(key.Day))
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Record stores the alert unless its slot is already taken. The check and
// the insert are a single statement; false means another run got there
// first.
func (d *Deduplicator) Record(ctx context.Context, key AlertKey, message string) (models.Alert, bool, error) {
	alert := models.Alert{
		TaskID:   key.TaskID,
		UserID:   key.UserID,
		Kind:     key.Kind,
		Message:  message,
		AlertDay: risk.DateOnly(key.Day),
	}
	created, err := d.alerts.CreateIfAbsent(ctx, &alert)
	if err != nil || !created {
		return models.Alert{}, false, err
	}
	return alert, true, nil
}

type plannedAlert struct {
	key     AlertKey
	message string
}

// planAlerts lists the alerts a task deserves today. Low risk deserves
// none; the kinds are exclusive per tier. A coordinator who is also the
// assignee gets only the assignee's critical alert, since both would share
// one (task, user, kind, day) key.
func planAlerts(task models.Task, level models.RiskLevel, coordinatorID *int64, day time.Time) []plannedAlert {
	var planned []plannedAlert
	switch level {
	case models.RiskMedium:
		if task.IsAssigned() {
			planned = append(planned, plannedAlert{
				key:     AlertKey{TaskID: task.ID, UserID: *task.AssignedTo, Kind: models.AlertKindPreventive, Day: day},
				message: preventiveMessage(task),
			})
		}
	case models.RiskHigh:
		if task.IsAssigned() {
			planned = append(planned, plannedAlert{
				key:     AlertKey{TaskID: task.ID, UserID: *task.AssignedTo, Kind: models.AlertKindCritical, Day: day},
				message: criticalAssigneeMessage,
			})
		}
		if coordinatorID != nil && *coordinatorID != 0 && !task.IsAssignedTo(*coordinatorID) {
			planned = append(planned, plannedAlert{
				key:     AlertKey{TaskID: task.ID, UserID: *coordinatorID, Kind: models.AlertKindCritical, Day: day},
				message: criticalCoordinatorMessage(task),
			})
		}
	}
	return planned
}

// emitAlerts records and notifies every planned alert. It returns how many
// were created by this call.
func (e *Engine) emitAlerts(ctx context.Context, planned []plannedAlert, task models.Task) (int, error) {
	created := 0
	for _, p := range planned {
		alert, ok, err := e.dedup.Record(ctx, p.key, p.message)
		if err != nil {
			return created, err
		}
		if !ok {
			e.logger.Debug().Str("alert_key", p.key.String()).Msg("alert already emitted today")
			continue
		}
		created++
		e.notify(ctx, string(alert.Kind), map[string]interface{}{"task_id": task.ID, "user_id": alert.UserID, "alert_id": alert.ID},
			func(ctx context.Context) error { return e.notifier.NotifyAlert(ctx, alert, task) })
	}
	return created, nil
}
