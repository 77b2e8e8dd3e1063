package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

type FinalizeOutcome struct {
	// Finalized is false when the event was already finished, or not yet
	// over, and nothing was written.
	Finalized    bool
	TasksDelayed int64
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	Get(ctx context.Context, id int64) (models.Event, error)
	ListDueForFinalization(ctx context.Context, today time.Time) ([]models.Event, error)
	// Finalize flips an ended event to finished and delays its open tasks,
	// both in one transaction guarded by a compare-and-swap on the event's
	// status. Running it twice writes nothing the second time.
	Finalize(ctx context.Context, id int64, today time.Time) (FinalizeOutcome, error)
	CreateCommittee(ctx context.Context, committee *models.Committee) error
}

type eventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

const eventColumns = `id, name, end_date, status, coordinator_id`

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.Status == "" {
		event.Status = models.EventStatusActive
	}
	const query = `
		INSERT INTO events (name, end_date, status, coordinator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		event.Name, dateArg(event.EndDate), event.Status, nullableInt64(event.CoordinatorID),
	).Scan(&event.ID)
	return errors.Wrap(err, "insert event")
}

func (r *eventRepository) Get(ctx context.Context, id int64) (models.Event, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, errors.Wrapf(err, "get event %d", id)
	}
	return event, nil
}

func (r *eventRepository) ListDueForFinalization(ctx context.Context, today time.Time) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE status <> 'finished' AND end_date <= $1
		ORDER BY end_date, id`
	rows, err := r.db.QueryContext(ctx, query, dateArg(today))
	if err != nil {
		return nil, errors.Wrap(err, "list events due for finalization")
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *eventRepository) Finalize(ctx context.Context, id int64, today time.Time) (FinalizeOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return FinalizeOutcome{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET status = 'finished'
		WHERE id = $1 AND status <> 'finished' AND end_date <= $2
	`, id, dateArg(today))
	if err != nil {
		return FinalizeOutcome{}, errors.Wrapf(err, "finish event %d", id)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return FinalizeOutcome{}, err
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'delayed', updated_at = CURRENT_TIMESTAMP
		WHERE status NOT IN ('completed', 'delayed')
		  AND id IN (
			SELECT t.id FROM tasks t
			LEFT JOIN committees c ON c.id = t.committee_id
			WHERE COALESCE(t.event_id, c.event_id) = $1
		  )
	`, id)
	if err != nil {
		return FinalizeOutcome{}, errors.Wrapf(err, "delay tasks of event %d", id)
	}
	delayed, err := res.RowsAffected()
	if err != nil {
		return FinalizeOutcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return FinalizeOutcome{}, errors.Wrap(err, "commit event finalization")
	}
	return FinalizeOutcome{Finalized: true, TasksDelayed: delayed}, nil
}

func (r *eventRepository) CreateCommittee(ctx context.Context, committee *models.Committee) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO committees (name, event_id) VALUES ($1, $2) RETURNING id`,
		committee.Name, committee.EventID,
	).Scan(&committee.ID)
	return errors.Wrap(err, "insert committee")
}

func scanEvent(scanner rowScanner) (models.Event, error) {
	var (
		event       models.Event
		endDate     dbTime
		coordinator sql.NullInt64
	)
	if err := scanner.Scan(&event.ID, &event.Name, &endDate, &event.Status, &coordinator); err != nil {
		return models.Event{}, err
	}
	event.EndDate = endDate.Date()
	event.CoordinatorID = int64Ptr(coordinator)
	return event, nil
}
