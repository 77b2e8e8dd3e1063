package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

type SweepRunRepository interface {
	Start(ctx context.Context, run *models.SweepRun) error
	// Finish stores the outcome of a running sweep. Finishing a run twice
	// returns ErrConflict.
	Finish(ctx context.Context, run models.SweepRun) error
	Get(ctx context.Context, id string) (models.SweepRun, error)
	List(ctx context.Context, limit, offset int) ([]models.SweepRun, error)
	// Stats aggregates runs started at or after since, bucketed by calendar
	// day in loc.
	Stats(ctx context.Context, since time.Time, loc *time.Location) (models.SweepRunStat, error)
}

type sweepRunRepository struct {
	db *sql.DB
}

func NewSweepRunRepository(db *sql.DB) SweepRunRepository {
	return &sweepRunRepository{db: db}
}

const sweepRunColumns = `id, triggered_by, status, started_at, finished_at, tasks_scanned, tasks_updated,
	status_changes, alerts_created, events_finalized, incidents_resolved, warnings, error_message`

func (r *sweepRunRepository) Start(ctx context.Context, run *models.SweepRun) error {
	if run.TriggeredBy == "" {
		run.TriggeredBy = "manual"
	}
	run.Status = models.SweepRunRunning
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sweep_runs (id, triggered_by, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.TriggeredBy, run.Status, run.StartedAt.UTC(),
	)
	return errors.Wrapf(err, "insert sweep run %s", run.ID)
}

func (r *sweepRunRepository) Finish(ctx context.Context, run models.SweepRun) error {
	finishedAt := time.Now().UTC()
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sweep_runs
		SET status = $1, finished_at = $2, tasks_scanned = $3, tasks_updated = $4, status_changes = $5,
		    alerts_created = $6, events_finalized = $7, incidents_resolved = $8, warnings = $9, error_message = $10
		WHERE id = $11 AND status = 'running'
	`,
		run.Status, finishedAt, run.TasksScanned, run.TasksUpdated, run.StatusChanges,
		run.AlertsCreated, run.EventsFinalized, run.IncidentsResolved, run.Warnings, run.ErrorMessage,
		run.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "finish sweep run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, run.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r *sweepRunRepository) Get(ctx context.Context, id string) (models.SweepRun, error) {
	run, err := scanSweepRun(r.db.QueryRowContext(ctx, `SELECT `+sweepRunColumns+` FROM sweep_runs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SweepRun{}, ErrNotFound
	}
	if err != nil {
		return models.SweepRun{}, errors.Wrapf(err, "get sweep run %s", id)
	}
	return run, nil
}

func (r *sweepRunRepository) List(ctx context.Context, limit, offset int) ([]models.SweepRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + sweepRunColumns + ` FROM sweep_runs ORDER BY started_at DESC, id LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *sweepRunRepository) Stats(ctx context.Context, since time.Time, loc *time.Location) (models.SweepRunStat, error) {
	if loc == nil {
		loc = time.UTC
	}
	runs, err := r.list(ctx,
		`SELECT `+sweepRunColumns+` FROM sweep_runs WHERE started_at >= $1 ORDER BY started_at`,
		since.UTC(),
	)
	if err != nil {
		return models.SweepRunStat{}, err
	}

	stat := models.SweepRunStat{PerDay: []models.SweepRunStatDay{}}
	index := map[time.Time]int{}
	for _, run := range runs {
		stat.Total++
		stat.AlertsCreated += run.AlertsCreated

		local := run.StartedAt.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		i, ok := index[day]
		if !ok {
			stat.PerDay = append(stat.PerDay, models.SweepRunStatDay{Day: day})
			i = len(stat.PerDay) - 1
			index[day] = i
		}
		stat.PerDay[i].AlertsCreated += run.AlertsCreated

		switch run.Status {
		case models.SweepRunSucceeded:
			stat.Succeeded++
			stat.PerDay[i].Succeeded++
		case models.SweepRunFailed:
			stat.Failed++
			stat.PerDay[i].Failed++
		default:
			stat.Running++
		}
	}
	if finished := stat.Succeeded + stat.Failed; finished > 0 {
		stat.SuccessRate = float64(stat.Succeeded) / float64(finished)
	}
	return stat, nil
}

func (r *sweepRunRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.SweepRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list sweep runs")
	}
	defer rows.Close()

	runs := []models.SweepRun{}
	for rows.Next() {
		run, err := scanSweepRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sweep run")
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanSweepRun(scanner rowScanner) (models.SweepRun, error) {
	var (
		run                   models.SweepRun
		startedAt, finishedAt dbTime
		errMsg                sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.TriggeredBy,
		&run.Status,
		&startedAt,
		&finishedAt,
		&run.TasksScanned,
		&run.TasksUpdated,
		&run.StatusChanges,
		&run.AlertsCreated,
		&run.EventsFinalized,
		&run.IncidentsResolved,
		&run.Warnings,
		&errMsg,
	); err != nil {
		return models.SweepRun{}, err
	}
	run.StartedAt = startedAt.Time
	run.FinishedAt = finishedAt.Ptr()
	if errMsg.Valid {
		run.ErrorMessage = &errMsg.String
	}
	return run, nil
}
