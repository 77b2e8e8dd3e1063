package engine

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
	"github.com/stanstork/taskwatch/internal/risk"
)

var (
	ErrEmptyDescription = errors.New("incident description is required")
	ErrInvalidSolution  = errors.New("an incident cannot be solved by its own task")
)

type ReportResult struct {
	Incident   models.Incident `json:"incident"`
	TaskPaused bool            `json:"task_paused"`
}

// ReportIncident opens an incident against a task and pauses the task
// until the incident is resolved. The event coordinator is told about it.
func (e *Engine) ReportIncident(ctx context.Context, taskID int64, reporterID *int64, description string) (ReportResult, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return ReportResult{}, ErrEmptyDescription
	}
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return ReportResult{}, err
	}
	if task.Status == models.TaskStatusCompleted {
		return ReportResult{}, ErrTaskCompleted
	}

	incident := models.Incident{TaskID: taskID, ReporterID: reporterID, Description: description}
	paused, err := e.incidents.Report(ctx, &incident)
	if err != nil {
		return ReportResult{}, err
	}
	log := e.logger.With().Int64("incident_id", incident.ID).Int64("task_id", taskID).Logger()
	log.Info().Bool("task_paused", paused).Msg("incident reported")

	coordinatorID, err := e.coordinatorOf(ctx, task, nil)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("coordinator lookup failed, incident report not notified")
	case coordinatorID == nil:
		log.Warn().Msg("task has no event coordinator, incident report not notified")
	default:
		e.notify(ctx, string(models.NotificationIncidentReported), map[string]interface{}{"incident_id": incident.ID},
			func(ctx context.Context) error {
				return e.notifier.NotifyIncidentReported(ctx, incident, task, *coordinatorID)
			})
	}
	return ReportResult{Incident: incident, TaskPaused: paused}, nil
}

// LinkSolutionTask names the task whose completion will resolve the
// incident. The incident stays reported. If the solution task is already
// completed the incident is resolved right away.
func (e *Engine) LinkSolutionTask(ctx context.Context, incidentID, solutionTaskID int64) (models.Incident, error) {
	current, err := e.incidents.Get(ctx, incidentID)
	if err != nil {
		return models.Incident{}, err
	}
	if current.TaskID == solutionTaskID {
		return models.Incident{}, ErrInvalidSolution
	}
	solution, err := e.tasks.Get(ctx, solutionTaskID)
	if err != nil {
		return models.Incident{}, err
	}

	incident, err := e.incidents.LinkSolution(ctx, incidentID, solutionTaskID)
	if errors.Is(err, repository.ErrConflict) {
		return models.Incident{}, ErrIncidentResolved
	}
	if err != nil {
		return models.Incident{}, err
	}
	e.logger.Info().Int64("incident_id", incidentID).Int64("solution_task_id", solutionTaskID).Msg("solution task linked")
	e.notify(ctx, string(models.NotificationIncidentManaged), map[string]interface{}{"incident_id": incidentID},
		func(ctx context.Context) error { return e.notifier.NotifyIncidentManaged(ctx, incident, solution) })

	if solution.Status == models.TaskStatusCompleted {
		out, ok, err := e.resolve(ctx, incidentID)
		if err != nil {
			return incident, err
		}
		if ok {
			return out.Incident, nil
		}
	}
	return incident, nil
}

// ResolveIncident resolves an incident directly, without a solution task.
func (e *Engine) ResolveIncident(ctx context.Context, incidentID int64) (repository.ResolveOutcome, error) {
	out, ok, err := e.resolve(ctx, incidentID)
	if err != nil {
		return repository.ResolveOutcome{}, err
	}
	if !ok {
		return repository.ResolveOutcome{}, ErrIncidentResolved
	}
	return out, nil
}

// ResolveBySolutionTask resolves every reported incident whose solution is
// taskID. It returns how many this call resolved.
func (e *Engine) ResolveBySolutionTask(ctx context.Context, taskID int64) (int, error) {
	incidents, err := e.incidents.ListReportedBySolutionTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	resolved, failed := e.resolveAll(ctx, incidents)
	if len(failed) > 0 {
		return resolved, errors.Errorf("%d of %d incidents solved by task %d failed to resolve", len(failed), len(incidents), taskID)
	}
	return resolved, nil
}

// ReconcileIncidents resolves reported incidents whose solution task was
// completed without the cascade finishing.
func (e *Engine) ReconcileIncidents(ctx context.Context) (int, []string, error) {
	incidents, err := e.incidents.ListReportedWithCompletedSolution(ctx)
	if err != nil {
		return 0, nil, err
	}
	if len(incidents) > 0 {
		e.logger.Warn().Int("count", len(incidents)).Msg("found incidents with completed solution still reported")
	}
	resolved, failed := e.resolveAll(ctx, incidents)
	return resolved, failed, nil
}

func (e *Engine) resolveAll(ctx context.Context, incidents []models.Incident) (int, []string) {
	var (
		resolved int
		failed   []string
	)
	for _, inc := range incidents {
		_, ok, err := e.resolve(ctx, inc.ID)
		if err != nil {
			e.logger.Error().Err(err).Int64("incident_id", inc.ID).Msg("incident resolution failed")
			failed = append(failed, warnf("incident %d: resolution failed: %v", inc.ID, err))
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, failed
}

// resolve closes one incident and reactivates its paused origin task in the
// same transaction. ok is false when another caller resolved it first.
// The reporter is notified after the commit.
func (e *Engine) resolve(ctx context.Context, incidentID int64) (repository.ResolveOutcome, bool, error) {
	out, err := e.incidents.Resolve(ctx, incidentID, e.now(), e.reactivationTarget)
	if errors.Is(err, repository.ErrConflict) {
		e.logger.Debug().Int64("incident_id", incidentID).Msg("incident already resolved")
		return repository.ResolveOutcome{}, false, nil
	}
	if err != nil {
		return repository.ResolveOutcome{}, false, err
	}

	log := e.logger.With().Int64("incident_id", incidentID).Int64("task_id", out.Incident.TaskID).Logger()
	if out.Reactivated {
		log.Info().Str("status", string(out.OriginTask.Status)).Msg("incident resolved, origin task reactivated")
	} else {
		log.Info().Msg("incident resolved")
	}

	if out.Incident.ReporterID == nil {
		log.Warn().Msg("incident has no reporter, resolution not notified")
		return out, true, nil
	}
	e.notify(ctx, string(models.NotificationIncidentResolved), map[string]interface{}{"incident_id": incidentID},
		func(ctx context.Context) error {
			return e.notifier.NotifyIncidentResolved(ctx, out.Incident, out.OriginTask)
		})
	return out, true, nil
}

// reactivationTarget is where a paused task goes once its incident is
// resolved: delayed if it is already overdue, in progress otherwise.
func (e *Engine) reactivationTarget(origin models.Task) models.TaskStatus {
	if origin.DueDate != nil && risk.ValidateDueDate(origin.DueDate) == nil &&
		risk.DateOnly(*origin.DueDate).Before(e.today()) {
		return models.TaskStatusDelayed
	}
	return models.TaskStatusInProgress
}
