package models

import "time"

// TaskStatus is the authoritative lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDelayed    TaskStatus = "delayed"
	TaskStatusPaused     TaskStatus = "paused"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusDelayed, TaskStatusPaused:
		return true
	default:
		return false
	}
}

// RiskLevel is the cached risk tier derived from a task's due date.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      TaskStatus `json:"status"`
	RiskLevel   RiskLevel  `json:"risk_level"`
	AssignedTo  *int64     `json:"assigned_to,omitempty"`
	EventID     *int64     `json:"event_id,omitempty"`
	CommitteeID *int64     `json:"committee_id,omitempty"`
	// OwningEventID is the task's direct event, or its committee's event
	// when the task has none. Nil means the task is orphaned.
	OwningEventID *int64    `json:"owning_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t Task) IsAssigned() bool {
	return t.AssignedTo != nil && *t.AssignedTo != 0
}

func (t Task) IsAssignedTo(userID int64) bool {
	return t.IsAssigned() && *t.AssignedTo == userID
}
