package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

// ReactivateFunc decides the status a paused origin task returns to when
// its incident is resolved.
type ReactivateFunc func(origin models.Task) models.TaskStatus

type ResolveOutcome struct {
	Incident    models.Incident
	OriginTask  models.Task
	Reactivated bool
}

type IncidentRepository interface {
	// Report inserts a reported incident and pauses its origin task in one
	// transaction. It reports whether the task was paused by this call.
	Report(ctx context.Context, incident *models.Incident) (bool, error)
	Get(ctx context.Context, id int64) (models.Incident, error)
	// LinkSolution attaches a solution task to a still-reported incident.
	LinkSolution(ctx context.Context, id, solutionTaskID int64) (models.Incident, error)
	ListReportedBySolutionTask(ctx context.Context, taskID int64) ([]models.Incident, error)
	// ListReportedWithCompletedSolution finds incidents whose cascade never ran.
	ListReportedWithCompletedSolution(ctx context.Context) ([]models.Incident, error)
	// Resolve moves a reported incident to resolved and, in the same
	// transaction, reactivates its origin task if that task is paused.
	// ErrConflict means it was already resolved.
	Resolve(ctx context.Context, id int64, resolvedAt time.Time, reactivate ReactivateFunc) (ResolveOutcome, error)
}

type incidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

const incidentColumns = `id, task_id, reporter_id, description, status, solution_task_id, created_at, resolved_at`

func (r *incidentRepository) Report(ctx context.Context, incident *models.Incident) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	query := `
		INSERT INTO incidents (task_id, reporter_id, description, status)
		VALUES ($1, $2, $3, 'reported')
		RETURNING ` + incidentColumns
	stored, err := scanIncident(tx.QueryRowContext(ctx, query,
		incident.TaskID, nullableInt64(incident.ReporterID), incident.Description))
	if err != nil {
		return false, errors.Wrap(err, "insert incident")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = 'paused', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status NOT IN ('completed', 'paused')
	`, incident.TaskID)
	if err != nil {
		return false, errors.Wrapf(err, "pause task %d", incident.TaskID)
	}
	paused, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "commit incident report")
	}
	*incident = stored
	return paused > 0, nil
}

func (r *incidentRepository) Get(ctx context.Context, id int64) (models.Incident, error) {
	return getIncident(ctx, r.db, id)
}

func (r *incidentRepository) LinkSolution(ctx context.Context, id, solutionTaskID int64) (models.Incident, error) {
	query := `UPDATE incidents SET solution_task_id = $1
		WHERE id = $2 AND status = 'reported'
		RETURNING ` + incidentColumns
	incident, err := scanIncident(r.db.QueryRowContext(ctx, query, solutionTaskID, id))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return models.Incident{}, getErr
		}
		return models.Incident{}, ErrConflict
	}
	if err != nil {
		return models.Incident{}, errors.Wrapf(err, "link solution to incident %d", id)
	}
	return incident, nil
}

func (r *incidentRepository) ListReportedBySolutionTask(ctx context.Context, taskID int64) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE status = 'reported' AND solution_task_id = $1
		ORDER BY id`
	return r.list(ctx, query, taskID)
}

func (r *incidentRepository) ListReportedWithCompletedSolution(ctx context.Context) ([]models.Incident, error) {
	query := `SELECT i.id, i.task_id, i.reporter_id, i.description, i.status, i.solution_task_id, i.created_at, i.resolved_at
		FROM incidents i
		JOIN tasks s ON s.id = i.solution_task_id
		WHERE i.status = 'reported' AND s.status = 'completed'
		ORDER BY i.id`
	return r.list(ctx, query)
}

func (r *incidentRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Incident, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list incidents")
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan incident")
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

func (r *incidentRepository) Resolve(ctx context.Context, id int64, resolvedAt time.Time, reactivate ReactivateFunc) (ResolveOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ResolveOutcome{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	query := `UPDATE incidents SET status = 'resolved', resolved_at = $1
		WHERE id = $2 AND status = 'reported'
		RETURNING ` + incidentColumns
	incident, err := scanIncident(tx.QueryRowContext(ctx, query, resolvedAt.UTC(), id))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := getIncident(ctx, tx, id); getErr != nil {
			return ResolveOutcome{}, getErr
		}
		return ResolveOutcome{}, ErrConflict
	}
	if err != nil {
		return ResolveOutcome{}, errors.Wrapf(err, "resolve incident %d", id)
	}

	out := ResolveOutcome{Incident: incident}
	origin, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = $1`, incident.TaskID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ResolveOutcome{}, errors.Wrapf(err, "load origin task %d", incident.TaskID)
	}
	if err == nil {
		out.OriginTask = origin
		if origin.Status == models.TaskStatusPaused && reactivate != nil {
			target := reactivate(origin)
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET status = $1, updated_at = CURRENT_TIMESTAMP
				WHERE id = $2 AND status = 'paused'
			`, target, origin.ID)
			if err != nil {
				return ResolveOutcome{}, errors.Wrapf(err, "reactivate task %d", origin.ID)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				out.Reactivated = true
				out.OriginTask.Status = target
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return ResolveOutcome{}, errors.Wrap(err, "commit incident resolution")
	}
	return out, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getIncident(ctx context.Context, q queryRower, id int64) (models.Incident, error) {
	incident, err := scanIncident(q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Incident{}, ErrNotFound
	}
	if err != nil {
		return models.Incident{}, errors.Wrapf(err, "get incident %d", id)
	}
	return incident, nil
}

func scanIncident(scanner rowScanner) (models.Incident, error) {
	var (
		incident              models.Incident
		reporterID, solution  sql.NullInt64
		createdAt, resolvedAt dbTime
	)
	if err := scanner.Scan(
		&incident.ID,
		&incident.TaskID,
		&reporterID,
		&incident.Description,
		&incident.Status,
		&solution,
		&createdAt,
		&resolvedAt,
	); err != nil {
		return models.Incident{}, err
	}
	incident.ReporterID = int64Ptr(reporterID)
	incident.SolutionTaskID = int64Ptr(solution)
	incident.CreatedAt = createdAt.Time
	incident.ResolvedAt = resolvedAt.Ptr()
	return incident, nil
}
