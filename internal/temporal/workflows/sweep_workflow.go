package workflows

import (
	"time"

	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/temporal"
	"github.com/stanstork/taskwatch/internal/temporal/activities"
	"github.com/stanstork/taskwatch/internal/worker"
)

type SweepOutcome struct {
	Sweep    engine.SweepResult
	Dispatch worker.DrainResult
}

// SweepWorkflow runs one risk sweep and then flushes the notifications it
// queued. A dispatch failure does not fail the workflow; the outbox keeps
// the rows for the next attempt.
func SweepWorkflow(ctx workflow.Context, params temporal.SweepParams) (SweepOutcome, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting sweep workflow", "trigger", params.Trigger)

	var a *activities.Activities
	var out SweepOutcome

	sweepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: temporal.SweepActivityTimeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    temporal.SweepMaxAttempts,
		},
	})
	if err := workflow.ExecuteActivity(sweepCtx, a.RunSweepActivity, params).Get(sweepCtx, &out.Sweep); err != nil {
		logger.Error("Sweep activity failed.", "error", err)
		return out, err
	}

	if params.SkipDispatch {
		return out, nil
	}

	dispatchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: temporal.DispatchActivityTimeout,
		RetryPolicy:         &sdktemporal.RetryPolicy{MaximumAttempts: 1},
	})
	if err := workflow.ExecuteActivity(dispatchCtx, a.DispatchNotificationsActivity).Get(dispatchCtx, &out.Dispatch); err != nil {
		logger.Warn("Notification dispatch failed, leaving rows in the outbox.", "error", err)
	}

	logger.Info("Sweep workflow completed.", "run_id", out.Sweep.RunID.String(),
		"tasks_updated", out.Sweep.TasksUpdated, "alerts_created", out.Sweep.AlertsCreated)
	return out, nil
}
