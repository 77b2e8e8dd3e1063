package models

import "time"

type SweepRunStatus string

const (
	SweepRunRunning   SweepRunStatus = "running"
	SweepRunSucceeded SweepRunStatus = "succeeded"
	SweepRunFailed    SweepRunStatus = "failed"
)

// SweepRun is the persisted history of one sweep.
type SweepRun struct {
	ID                string         `json:"id" db:"id"`
	TriggeredBy       string         `json:"triggered_by" db:"triggered_by"`
	Status            SweepRunStatus `json:"status" db:"status"`
	StartedAt         time.Time      `json:"started_at" db:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
	TasksScanned      int            `json:"tasks_scanned" db:"tasks_scanned"`
	TasksUpdated      int            `json:"tasks_updated" db:"tasks_updated"`
	StatusChanges     int            `json:"status_changes" db:"status_changes"`
	AlertsCreated     int            `json:"alerts_created" db:"alerts_created"`
	EventsFinalized   int            `json:"events_finalized" db:"events_finalized"`
	IncidentsResolved int            `json:"incidents_resolved" db:"incidents_resolved"`
	Warnings          int            `json:"warnings" db:"warnings"`
	ErrorMessage      *string        `json:"error_message,omitempty" db:"error_message"`
}

// SweepRunStatDay holds counts for a single day.
type SweepRunStatDay struct {
	Day           time.Time `json:"day"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	AlertsCreated int       `json:"alerts_created"`
}

// SweepRunStat aggregates sweep history over a period, plus per-day details.
type SweepRunStat struct {
	Total         int               `json:"total"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Running       int               `json:"running"`
	SuccessRate   float64           `json:"success_rate"` // succeeded/finished
	AlertsCreated int               `json:"alerts_created"`
	PerDay        []SweepRunStatDay `json:"per_day"`
}
