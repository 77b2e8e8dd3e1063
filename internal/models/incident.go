package models

import "time"

type IncidentStatus string

const (
	IncidentStatusReported IncidentStatus = "reported"
	IncidentStatusResolved IncidentStatus = "resolved"
)

// Incident is a problem reported against a task. Linking a solution task
// does not resolve it; only completion of that task or a manual
// resolution does.
type Incident struct {
	ID             int64          `json:"id"`
	TaskID         int64          `json:"task_id"`
	ReporterID     *int64         `json:"reporter_id,omitempty"`
	Description    string         `json:"description"`
	Status         IncidentStatus `json:"status"`
	SolutionTaskID *int64         `json:"solution_task_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
}
