package models

import "time"

type AlertKind string

const (
	AlertKindPreventive AlertKind = "preventive"
	AlertKindCritical   AlertKind = "critical"
)

func (k AlertKind) IsValid() bool {
	return k == AlertKindPreventive || k == AlertKindCritical
}

// Alert is immutable once created, except for IsRead.
type Alert struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	AlertDay  time.Time `json:"alert_day"`
	CreatedAt time.Time `json:"created_at"`
}
