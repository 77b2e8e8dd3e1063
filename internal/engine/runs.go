package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stanstork/taskwatch/internal/models"
)

const (
	TriggerAPI = "api"
	TriggerCLI = "cli"
)

// RunSweep runs a sweep and records it in the sweep history: a running row
// first, the outcome once the sweep returns. History writes that fail are
// logged and never fail the sweep itself.
func (e *Engine) RunSweep(ctx context.Context, trigger string) (SweepResult, error) {
	if e.runs == nil {
		return e.Sweep(ctx)
	}

	// History outlives the caller's context, which may be why the sweep stops.
	hctx := context.WithoutCancel(ctx)
	runID := uuid.New()
	log := e.logger.With().Str("run_id", runID.String()).Logger()
	run := models.SweepRun{ID: runID.String(), TriggeredBy: trigger, StartedAt: e.now()}
	recorded := true
	if err := e.runs.Start(hctx, &run); err != nil {
		log.Warn().Err(err).Msg("could not record sweep run")
		recorded = false
	}

	res, err := e.sweep(ctx, runID)
	if !recorded {
		return res, err
	}

	run.FinishedAt = &res.FinishedAt
	run.TasksScanned = res.TasksScanned
	run.TasksUpdated = res.TasksUpdated
	run.StatusChanges = res.StatusChanges
	run.AlertsCreated = res.AlertsCreated
	run.EventsFinalized = res.EventsFinalized
	run.IncidentsResolved = res.IncidentsResolved
	run.Warnings = len(res.Warnings)
	run.Status = models.SweepRunSucceeded
	if err != nil {
		msg := err.Error()
		run.Status = models.SweepRunFailed
		run.ErrorMessage = &msg
	}
	if ferr := e.runs.Finish(hctx, run); ferr != nil {
		log.Warn().Err(ferr).Msg("could not store sweep run outcome")
	}
	return res, err
}

// SweepHistory lists recorded sweeps, newest first.
func (e *Engine) SweepHistory(ctx context.Context, limit, offset int) ([]models.SweepRun, error) {
	if e.runs == nil {
		return []models.SweepRun{}, nil
	}
	return e.runs.List(ctx, limit, offset)
}

// SweepStats aggregates the sweeps of the last days calendar days.
func (e *Engine) SweepStats(ctx context.Context, days int) (models.SweepRunStat, error) {
	if days <= 0 {
		days = 7
	}
	if e.runs == nil {
		return models.SweepRunStat{PerDay: []models.SweepRunStatDay{}}, nil
	}
	loc := e.evaluator.Location()
	local := e.now().In(loc)
	since := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(days - 1))
	return e.runs.Stats(ctx, since, loc)
}
