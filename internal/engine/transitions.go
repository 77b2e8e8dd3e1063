package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
)

var allowedTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskStatusPending:    {models.TaskStatusInProgress, models.TaskStatusDelayed, models.TaskStatusPaused, models.TaskStatusCompleted},
	models.TaskStatusInProgress: {models.TaskStatusDelayed, models.TaskStatusPaused, models.TaskStatusCompleted},
	models.TaskStatusDelayed:    {models.TaskStatusPaused, models.TaskStatusCompleted},
	models.TaskStatusPaused:     {models.TaskStatusDelayed, models.TaskStatusInProgress, models.TaskStatusCompleted},
	models.TaskStatusCompleted:  {},
}

func canTransition(from, to models.TaskStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// escalates reports whether a high-risk task in this status should be
// pushed to delayed. Delayed, paused and completed tasks are left alone.
func escalates(status models.TaskStatus) bool {
	return canTransition(status, models.TaskStatusDelayed) && status != models.TaskStatusPaused
}

// AssignTask gives the task to userID. A pending task starts progress;
// any other open status is kept. Completed tasks are rejected.
func (e *Engine) AssignTask(ctx context.Context, taskID, userID int64) (models.Task, error) {
	if userID <= 0 {
		return models.Task{}, ErrInvalidAssignment
	}
	task, err := e.tasks.Assign(ctx, taskID, userID)
	if errors.Is(err, repository.ErrConflict) {
		return models.Task{}, ErrTaskCompleted
	}
	if err != nil {
		return models.Task{}, err
	}

	e.logger.Info().Int64("task_id", task.ID).Int64("user_id", userID).Str("status", string(task.Status)).Msg("task assigned")
	e.notify(ctx, string(models.NotificationTaskAssigned), map[string]interface{}{"task_id": task.ID, "user_id": userID},
		func(ctx context.Context) error { return e.notifier.NotifyTaskAssigned(ctx, task) })
	return task, nil
}

// EscalateRisk moves a high-risk task to delayed. The write is a
// compare-and-swap on the observed status; losing the race is not an
// error and reports false.
func (e *Engine) EscalateRisk(ctx context.Context, task models.Task, level models.RiskLevel) (bool, error) {
	if level != models.RiskHigh || !escalates(task.Status) {
		return false, nil
	}
	err := e.tasks.TransitionStatus(ctx, task.ID, task.Status, models.TaskStatusDelayed)
	if errors.Is(err, repository.ErrConflict) {
		e.logger.Debug().Int64("task_id", task.ID).Str("from", string(task.Status)).Msg("escalation skipped, status changed concurrently")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.Info().Int64("task_id", task.ID).Str("from", string(task.Status)).Msg("task delayed by risk escalation")
	return true, nil
}

type CompletionResult struct {
	TaskID int64 `json:"task_id"`
	// Completed is false when the task had already been completed.
	Completed         bool `json:"completed"`
	IncidentsResolved int  `json:"incidents_resolved"`
}

// CompleteTask marks the task completed and then resolves every reported
// incident that names it as solution. The cascade runs even when the task
// was already completed so an interrupted cascade can be retried.
func (e *Engine) CompleteTask(ctx context.Context, taskID int64) (CompletionResult, error) {
	completed, err := e.tasks.Complete(ctx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if completed {
		e.logger.Info().Int64("task_id", taskID).Msg("task completed")
	}

	resolved, err := e.ResolveBySolutionTask(ctx, taskID)
	if err != nil {
		return CompletionResult{TaskID: taskID, Completed: completed, IncidentsResolved: resolved}, err
	}
	return CompletionResult{TaskID: taskID, Completed: completed, IncidentsResolved: resolved}, nil
}

// FinalizeEvent closes an ended event and delays its open tasks. It is a
// no-op for events that are already finished or not over yet.
func (e *Engine) FinalizeEvent(ctx context.Context, eventID int64) (repository.FinalizeOutcome, error) {
	out, err := e.events.Finalize(ctx, eventID, e.today())
	if err != nil {
		return repository.FinalizeOutcome{}, err
	}
	if out.Finalized {
		e.logger.Info().Int64("event_id", eventID).Int64("tasks_delayed", out.TasksDelayed).Msg("event finalized")
	} else {
		e.logger.Debug().Int64("event_id", eventID).Msg("event finalization skipped")
	}
	return out, nil
}

type FinalizationSummary struct {
	EventsFinalized int
	TasksDelayed    int64
	Warnings        []string
}

// FinalizeDueEvents finalizes every event whose end date has been reached.
// A failing event is reported as a warning and does not stop the rest.
func (e *Engine) FinalizeDueEvents(ctx context.Context) (FinalizationSummary, error) {
	due, err := e.events.ListDueForFinalization(ctx, e.today())
	if err != nil {
		return FinalizationSummary{}, err
	}
	var sum FinalizationSummary
	for _, ev := range due {
		out, err := e.FinalizeEvent(ctx, ev.ID)
		if err != nil {
			e.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("event finalization failed")
			sum.Warnings = append(sum.Warnings, warnf("event %d: finalization failed: %v", ev.ID, err))
			continue
		}
		if out.Finalized {
			sum.EventsFinalized++
			sum.TasksDelayed += out.TasksDelayed
		}
	}
	return sum, nil
}
