package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
)

type SweepResult struct {
	RunID                uuid.UUID `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	TasksScanned         int       `json:"tasks_scanned"`
	TasksUpdated         int       `json:"tasks_updated"`
	StatusChanges        int       `json:"status_changes"`
	AlertsCreated        int       `json:"alerts_created"`
	EventsFinalized      int       `json:"events_finalized"`
	TasksDelayedByEvents int64     `json:"tasks_delayed_by_events"`
	IncidentsResolved    int       `json:"incidents_resolved"`
	Warnings             []string  `json:"warnings"`
}

func (r SweepResult) Summary() string {
	return fmt.Sprintf("%d tasks updated, %d alerts created (%d scanned, %d status changes, %d events finalized, %d incidents resolved, %d warnings)",
		r.TasksUpdated, r.AlertsCreated, r.TasksScanned, r.StatusChanges, r.EventsFinalized, r.IncidentsResolved, len(r.Warnings))
}

// Sweep is the periodic pass over all open tasks: refresh risk, escalate,
// emit today's alerts, then finalize ended events and reconcile incidents.
// It is safe to run repeatedly and concurrently; every write is
// conditional. A failing task becomes a warning. The error is non-nil
// only when the sweep could not run to the end.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	return e.sweep(ctx, uuid.New())
}

func (e *Engine) sweep(ctx context.Context, runID uuid.UUID) (SweepResult, error) {
	res := SweepResult{RunID: runID, StartedAt: e.now(), Warnings: []string{}}
	log := e.logger.With().Str("run_id", res.RunID.String()).Logger()
	log.Info().Time("today", e.today()).Msg("sweep started")

	tasks, err := e.tasks.ListOpen(ctx)
	if err != nil {
		return e.finish(res), errors.Wrap(err, "load open tasks")
	}

	events := map[int64]models.Event{}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return e.finish(res), err
		}
		res.TasksScanned++
		updated, escalated, alerts, warning := e.sweepTask(ctx, task, events)
		if updated {
			res.TasksUpdated++
		}
		if escalated {
			res.StatusChanges++
		}
		res.AlertsCreated += alerts
		if warning != "" {
			log.Warn().Int64("task_id", task.ID).Msg(warning)
			res.Warnings = append(res.Warnings, warning)
		}
	}

	fin, err := e.FinalizeDueEvents(ctx)
	if err != nil {
		return e.finish(res), errors.Wrap(err, "finalize events")
	}
	res.EventsFinalized = fin.EventsFinalized
	res.TasksDelayedByEvents = fin.TasksDelayed
	res.Warnings = append(res.Warnings, fin.Warnings...)

	resolved, failed, err := e.ReconcileIncidents(ctx)
	if err != nil {
		return e.finish(res), errors.Wrap(err, "reconcile incidents")
	}
	res.IncidentsResolved = resolved
	res.Warnings = append(res.Warnings, failed...)

	res = e.finish(res)
	log.Info().
		Int("tasks_scanned", res.TasksScanned).
		Int("tasks_updated", res.TasksUpdated).
		Int("status_changes", res.StatusChanges).
		Int("alerts_created", res.AlertsCreated).
		Int("events_finalized", res.EventsFinalized).
		Int("incidents_resolved", res.IncidentsResolved).
		Int("warnings", len(res.Warnings)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("sweep finished")
	return res, nil
}

func (e *Engine) finish(res SweepResult) SweepResult {
	res.FinishedAt = e.now()
	return res
}

// sweepTask handles one task. Any failure is returned as a warning so the
// caller can move on to the next task.
func (e *Engine) sweepTask(ctx context.Context, task models.Task, events map[int64]models.Event) (updated, escalated bool, alerts int, warning string) {
	if task.OwningEventID == nil {
		return false, false, 0, warnf("task %d: no owning event, skipped", task.ID)
	}
	level, err := e.evaluator.EvaluateTask(task, e.now())
	if err != nil {
		return false, false, 0, warnf("task %d: %v, skipped", task.ID, err)
	}

	updated, err = e.tasks.UpdateRisk(ctx, task.ID, level)
	if err != nil {
		return false, false, 0, warnf("task %d: risk update failed: %v", task.ID, err)
	}
	task.RiskLevel = level

	escalated, err = e.EscalateRisk(ctx, task, level)
	if err != nil {
		return updated, false, 0, warnf("task %d: escalation failed: %v", task.ID, err)
	}
	if escalated {
		task.Status = models.TaskStatusDelayed
	}

	var coordinatorID *int64
	if level == models.RiskHigh {
		coordinatorID, err = e.coordinatorOf(ctx, task, events)
		if err != nil {
			warning = warnf("task %d: coordinator lookup failed: %v", task.ID, err)
		}
	}

	alerts, err = e.emitAlerts(ctx, planAlerts(task, level, coordinatorID, e.today()), task)
	if err != nil {
		return updated, escalated, alerts, warnf("task %d: alert emission failed: %v", task.ID, err)
	}
	return updated, escalated, alerts, warning
}
