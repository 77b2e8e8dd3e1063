package temporal

import "time"

// DefaultTaskQueue is used when temporal.task_queue is not configured.
const DefaultTaskQueue = "TASKWATCH_SWEEP"

const (
	// SweepWorkflowIDPrefix prefixes every sweep workflow id.
	SweepWorkflowIDPrefix = "taskwatch-sweep-"
	// SweepScheduleID names the single schedule that triggers sweeps.
	SweepScheduleID = "taskwatch-risk-sweep"
)

const (
	SweepActivityTimeout    = 10 * time.Minute
	DispatchActivityTimeout = 5 * time.Minute
	SweepMaxAttempts        = 3
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// SweepParams is the workflow input.
type SweepParams struct {
	Trigger string
	// SkipDispatch leaves queued notifications for the outbox worker.
	SkipDispatch bool
}
