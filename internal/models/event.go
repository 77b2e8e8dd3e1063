package models

import "time"

type EventStatus string

const (
	EventStatusPlanned  EventStatus = "planned"
	EventStatusActive   EventStatus = "active"
	EventStatusFinished EventStatus = "finished"
)

type Event struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	EndDate       time.Time   `json:"end_date"`
	Status        EventStatus `json:"status"`
	CoordinatorID *int64      `json:"coordinator_id,omitempty"`
}

type Committee struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	EventID int64  `json:"event_id"`
}
