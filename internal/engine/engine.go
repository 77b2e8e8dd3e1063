// Package engine drives task risk, status transitions, daily alerts and
// incident resolution on top of the repositories.
package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/notification"
	"github.com/stanstork/taskwatch/internal/repository"
	"github.com/stanstork/taskwatch/internal/risk"
)

var (
	ErrTaskCompleted     = errors.New("task is already completed")
	ErrIncidentResolved  = errors.New("incident is already resolved")
	ErrInvalidAssignment = errors.New("a task must be assigned to a user")
)

type Deps struct {
	Tasks     repository.TaskRepository
	Alerts    repository.AlertRepository
	Incidents repository.IncidentRepository
	Events    repository.EventRepository
	// Runs is optional; without it RunSweep keeps no history.
	Runs          repository.SweepRunRepository
	Notifications notification.Service
	Evaluator     *risk.Evaluator
	Clock         risk.Clock
	Logger        zerolog.Logger
}

type Engine struct {
	tasks     repository.TaskRepository
	alerts    repository.AlertRepository
	incidents repository.IncidentRepository
	events    repository.EventRepository
	runs      repository.SweepRunRepository
	notifier  notification.Service
	dedup     *Deduplicator
	evaluator *risk.Evaluator
	clock     risk.Clock
	logger    zerolog.Logger
}

func New(d Deps) *Engine {
	if d.Evaluator == nil {
		d.Evaluator = risk.NewEvaluator(time.UTC)
	}
	if d.Clock == nil {
		d.Clock = risk.SystemClock{}
	}
	return &Engine{
		tasks:     d.Tasks,
		alerts:    d.Alerts,
		incidents: d.Incidents,
		events:    d.Events,
		runs:      d.Runs,
		notifier:  d.Notifications,
		dedup:     NewDeduplicator(d.Alerts),
		evaluator: d.Evaluator,
		clock:     d.Clock,
		logger:    d.Logger.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// today is read fresh on every call; a long sweep may cross midnight.
func (e *Engine) today() time.Time {
	return e.evaluator.Today(e.now())
}

// notify runs a best-effort notification. Failures are logged with the
// given fields and never returned.
func (e *Engine) notify(ctx context.Context, what string, fields map[string]interface{}, send func(context.Context) error) {
	if e.notifier == nil {
		return
	}
	err := send(ctx)
	if err == nil {
		return
	}
	e.logger.Warn().Err(err).Fields(fields).Str("notification", what).Msg("notification not queued")
}

// coordinatorOf looks up the coordinator of a task's owning event. The
// cache may be nil.
func (e *Engine) coordinatorOf(ctx context.Context, task models.Task, cache map[int64]models.Event) (*int64, error) {
	if task.OwningEventID == nil {
		return nil, nil
	}
	id := *task.OwningEventID
	if ev, ok := cache[id]; ok {
		return ev.CoordinatorID, nil
	}
	ev, err := e.events.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load event %d", id)
	}
	if cache != nil {
		cache[id] = ev
	}
	return ev.CoordinatorID, nil
}
