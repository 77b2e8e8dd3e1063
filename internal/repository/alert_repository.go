package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

type AlertRepository interface {
	// CreateIfAbsent inserts the alert unless one with the same daily key
	// already exists. The check and the insert are one statement, backed by
	// unique indexes, so concurrent sweeps cannot both succeed.
	CreateIfAbsent(ctx context.Context, alert *models.Alert) (bool, error)
	Exists(ctx context.Context, taskID, userID int64, kind models.AlertKind, day time.Time) (bool, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]models.Alert, error)
	CountForTask(ctx context.Context, taskID int64) (int, error)
	MarkRead(ctx context.Context, alertID, userID int64) (models.Alert, error)
}

type alertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepository{db: db}
}

const alertColumns = `id, task_id, user_id, kind, message, is_read, alert_day, created_at`

func (r *alertRepository) CreateIfAbsent(ctx context.Context, alert *models.Alert) (bool, error) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	const query = `
		INSERT INTO alerts (task_id, user_id, kind, message, is_read, alert_day, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		ON CONFLICT DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		alert.TaskID,
		alert.UserID,
		alert.Kind,
		alert.Message,
		dateArg(alert.AlertDay),
		alert.CreatedAt.UTC(),
	).Scan(&alert.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "insert %s alert for task %d", alert.Kind, alert.TaskID)
	}
	alert.IsRead = false
	return true, nil
}

// Exists mirrors the unique indexes: preventive alerts are keyed by task
// and day only, critical alerts also by recipient.
func (r *alertRepository) Exists(ctx context.Context, taskID, userID int64, kind models.AlertKind, day time.Time) (bool, error) {
	const query = `
		SELECT COUNT(1) FROM alerts
		WHERE task_id = $1 AND kind = $2 AND alert_day = $3
		  AND (kind = 'preventive' OR user_id = $4)
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, taskID, kind, dateArg(day), userID).Scan(&n); err != nil {
		return false, errors.Wrap(err, "check alert")
	}
	return n > 0, nil
}

func (r *alertRepository) ListForUser(ctx context.Context, userID int64, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE user_id = $1
		ORDER BY is_read ASC, created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *alertRepository) CountForTask(ctx context.Context, taskID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM alerts WHERE task_id = $1`, taskID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count alerts")
	}
	return n, nil
}

func (r *alertRepository) MarkRead(ctx context.Context, alertID, userID int64) (models.Alert, error) {
	query := `UPDATE alerts SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING ` + alertColumns
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, ErrNotFound
	}
	if err != nil {
		return models.Alert{}, errors.Wrapf(err, "mark alert %d read", alertID)
	}
	return alert, nil
}

func scanAlert(scanner rowScanner) (models.Alert, error) {
	var (
		alert     models.Alert
		day       dbTime
		createdAt dbTime
	)
	if err := scanner.Scan(
		&alert.ID,
		&alert.TaskID,
		&alert.UserID,
		&alert.Kind,
		&alert.Message,
		&alert.IsRead,
		&day,
		&createdAt,
	); err != nil {
		return models.Alert{}, err
	}
	alert.AlertDay = day.Date()
	alert.CreatedAt = createdAt.Time
	return alert, nil
}
