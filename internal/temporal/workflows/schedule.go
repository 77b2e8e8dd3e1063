package workflows

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/taskwatch/internal/temporal"
)

// EnsureSchedule creates the cron schedule that triggers SweepWorkflow.
// An existing schedule is left as is. Overlapping runs are skipped.
func EnsureSchedule(ctx context.Context, c client.Client, cron, taskQueue string, logger zerolog.Logger) error {
	cron = strings.TrimSpace(cron)
	if cron == "" {
		return errors.New("sweep cron expression is required")
	}
	if taskQueue == "" {
		taskQueue = temporal.DefaultTaskQueue
	}

	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: temporal.SweepScheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        temporal.SweepWorkflowIDPrefix + "scheduled",
			Workflow:  SweepWorkflow,
			Args:      []interface{}{temporal.SweepParams{Trigger: temporal.TriggerSchedule}},
			TaskQueue: taskQueue,
		},
	})
	if errors.Is(err, sdktemporal.ErrScheduleAlreadyRunning) {
		logger.Info().Str("schedule_id", temporal.SweepScheduleID).Msg("sweep schedule already exists")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info().Str("schedule_id", temporal.SweepScheduleID).Str("cron", cron).Msg("sweep schedule created")
	return nil
}
