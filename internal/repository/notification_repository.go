package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

// NotificationRepository is the outbox. Rows are written by the engine and
// drained by the dispatcher worker.
type NotificationRepository interface {
	Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error)
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
	// ClaimPending leases up to limit undelivered rows for lease. Claimed
	// rows are invisible to other claimers until the lease runs out.
	ClaimPending(ctx context.Context, limit int, maxAttempts int, lease time.Duration) ([]models.Notification, error)
	MarkDelivered(ctx context.Context, id string) error
	// MarkFailed records a delivery error and hides the row from claimers
	// for retryAfter. When abandon is true the row is never retried.
	MarkFailed(ctx context.Context, id, reason string, retryAfter time.Duration, abandon bool) error
}

type notificationRepository struct {
	db      *sql.DB
	dialect Dialect
}

type CreateNotificationParams struct {
	RecipientID int64
	Kind        models.NotificationKind
	TaskID      *int64
	IncidentID  *int64
	Title       string
	Message     string
}

func NewNotificationRepository(db *sql.DB, dialect Dialect) NotificationRepository {
	return &notificationRepository{db: db, dialect: dialect}
}

const notificationColumns = `id, recipient_id, kind, task_id, incident_id, title, message, attempts, last_error, abandoned, created_at, delivered_at`

func (r *notificationRepository) Create(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	query := `
		INSERT INTO notifications (id, recipient_id, kind, task_id, incident_id, title, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + notificationColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		params.RecipientID,
		params.Kind,
		nullableInt64(params.TaskID),
		nullableInt64(params.IncidentID),
		strings.TrimSpace(params.Title),
		strings.TrimSpace(params.Message),
		time.Now().UTC(),
	)
	notif, err := scanNotification(row)
	if err != nil {
		return models.Notification{}, errors.Wrapf(err, "insert %s notification", params.Kind)
	}
	return notif, nil
}

func (r *notificationRepository) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`
	return r.list(ctx, query, recipientID, limit)
}

func (r *notificationRepository) ClaimPending(ctx context.Context, limit int, maxAttempts int, lease time.Duration) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	lock := ""
	if r.dialect == DialectPostgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	query := `
		UPDATE notifications
		SET attempts = attempts + 1, lease_expires = $1
		WHERE id IN (
			SELECT id FROM notifications
			WHERE delivered_at IS NULL AND abandoned = FALSE
			  AND attempts < $2 AND lease_expires < $3
			ORDER BY created_at, id
			LIMIT $4` + lock + `
		)
		RETURNING ` + notificationColumns
	return r.list(ctx, query, now.Add(lease).Unix(), maxAttempts, now.Unix(), limit)
}

func (r *notificationRepository) MarkDelivered(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET delivered_at = $1, lease_expires = 0, last_error = NULL
		WHERE id = $2
	`, time.Now().UTC(), id)
	return errors.Wrapf(err, "mark notification %s delivered", id)
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id, reason string, retryAfter time.Duration, abandon bool) error {
	var retryAt int64
	if !abandon && retryAfter > 0 {
		retryAt = time.Now().UTC().Add(retryAfter).Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET last_error = $1, abandoned = $2, lease_expires = $3
		WHERE id = $4
	`, reason, abandon, retryAt, id)
	return errors.Wrapf(err, "mark notification %s failed", id)
}

func (r *notificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query notifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func scanNotification(scanner rowScanner) (models.Notification, error) {
	var (
		notif                models.Notification
		taskID, incidentID   sql.NullInt64
		lastError            sql.NullString
		createdAt, delivered dbTime
	)

	if err := scanner.Scan(
		&notif.ID,
		&notif.RecipientID,
		&notif.Kind,
		&taskID,
		&incidentID,
		&notif.Title,
		&notif.Message,
		&notif.Attempts,
		&lastError,
		&notif.Abandoned,
		&createdAt,
		&delivered,
	); err != nil {
		return models.Notification{}, err
	}

	notif.TaskID = int64Ptr(taskID)
	notif.IncidentID = int64Ptr(incidentID)
	if lastError.Valid {
		val := lastError.String
		notif.LastError = &val
	}
	notif.CreatedAt = createdAt.Time
	notif.DeliveredAt = delivered.Ptr()
	return notif, nil
}
