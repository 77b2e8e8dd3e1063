package models

import "time"

type NotificationKind string

const (
	NotificationTaskAssigned     NotificationKind = "task_assigned"
	NotificationAlertPreventive  NotificationKind = "alert_preventive"
	NotificationAlertCritical    NotificationKind = "alert_critical"
	NotificationIncidentReported NotificationKind = "incident_reported"
	NotificationIncidentManaged  NotificationKind = "incident_managed"
	NotificationIncidentResolved NotificationKind = "incident_resolved"
)

// Notification is an outbox row: written alongside state changes and
// delivered later by the dispatcher worker.
type Notification struct {
	ID          string           `json:"id" db:"id"`
	RecipientID int64            `json:"recipient_id" db:"recipient_id"`
	Kind        NotificationKind `json:"kind" db:"kind"`
	TaskID      *int64           `json:"task_id,omitempty" db:"task_id"`
	IncidentID  *int64           `json:"incident_id,omitempty" db:"incident_id"`
	Title       string           `json:"title" db:"title"`
	Message     string           `json:"message" db:"message"`
	Attempts    int              `json:"attempts" db:"attempts"`
	LastError   *string          `json:"last_error,omitempty" db:"last_error"`
	Abandoned   bool             `json:"abandoned" db:"abandoned"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	DeliveredAt *time.Time       `json:"delivered_at,omitempty" db:"delivered_at"`
}
