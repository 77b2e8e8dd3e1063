package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/temporal"
	"github.com/stanstork/taskwatch/internal/worker"
)

type Sweeper interface {
	RunSweep(ctx context.Context, trigger string) (engine.SweepResult, error)
}

type Drainer interface {
	DrainAll(ctx context.Context) (worker.DrainResult, error)
}

type Activities struct {
	Engine Sweeper
	// Outbox is optional; without it dispatching is left to the worker loop.
	Outbox Drainer
}

func (a *Activities) RunSweepActivity(ctx context.Context, params temporal.SweepParams) (engine.SweepResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Running risk sweep", "trigger", params.Trigger, "attempt", activity.GetInfo(ctx).Attempt)

	res, err := a.Engine.RunSweep(ctx, params.Trigger)
	if err != nil {
		logger.Error("Risk sweep failed", "error", err)
		return res, err
	}
	logger.Info("Risk sweep finished", "run_id", res.RunID.String(), "summary", res.Summary())
	return res, nil
}

func (a *Activities) DispatchNotificationsActivity(ctx context.Context) (worker.DrainResult, error) {
	if a.Outbox == nil {
		return worker.DrainResult{}, nil
	}
	logger := activity.GetLogger(ctx)
	res, err := a.Outbox.DrainAll(ctx)
	if err != nil {
		logger.Error("Notification dispatch failed", "error", err)
		return res, err
	}
	logger.Info("Notifications dispatched", "delivered", res.Delivered, "failed", res.Failed, "abandoned", res.Abandoned)
	return res, nil
}
