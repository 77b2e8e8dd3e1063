package repository_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
	"github.com/stanstork/taskwatch/internal/testutil"
)

var day = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ctx       context.Context
	db        *sql.DB
	tasks     repository.TaskRepository
	alerts    repository.AlertRepository
	incidents repository.IncidentRepository
	events    repository.EventRepository
	users     repository.UserRepository
	outbox    repository.NotificationRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return fixture{
		ctx:       context.Background(),
		db:        db,
		tasks:     repository.NewTaskRepository(db),
		alerts:    repository.NewAlertRepository(db),
		incidents: repository.NewIncidentRepository(db),
		events:    repository.NewEventRepository(db),
		users:     repository.NewUserRepository(db),
		outbox:    repository.NewNotificationRepository(db, repository.DialectSQLite),
	}
}

func (f fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u := models.User{Name: name, Email: name + "@example.org"}
	require.NoError(t, f.users.Create(f.ctx, &u))
	return u.ID
}

func (f fixture) event(t *testing.T, endDate time.Time) models.Event {
	t.Helper()
	ev := models.Event{Name: "Congreso", EndDate: endDate}
	require.NoError(t, f.events.Create(f.ctx, &ev))
	return ev
}

func (f fixture) task(t *testing.T, task models.Task) models.Task {
	t.Helper()
	require.NoError(t, f.tasks.Create(f.ctx, &task))
	return task
}

func ptr[T any](v T) *T { return &v }

func TestTaskOwningEventResolution(t *testing.T) {
	f := newFixture(t)
	direct := f.event(t, day.AddDate(0, 0, 10))
	viaCommittee := f.event(t, day.AddDate(0, 0, 20))
	committee := models.Committee{Name: "Logística", EventID: viaCommittee.ID}
	require.NoError(t, f.events.CreateCommittee(f.ctx, &committee))

	a := f.task(t, models.Task{Title: "direct", DueDate: ptr(day), EventID: &direct.ID})
	b := f.task(t, models.Task{Title: "committee", DueDate: ptr(day), CommitteeID: &committee.ID})
	c := f.task(t, models.Task{Title: "both", DueDate: ptr(day), EventID: &direct.ID, CommitteeID: &committee.ID})
	d := f.task(t, models.Task{Title: "orphan", DueDate: ptr(day)})

	assert.Equal(t, direct.ID, *a.OwningEventID)
	assert.Equal(t, viaCommittee.ID, *b.OwningEventID)
	assert.Equal(t, direct.ID, *c.OwningEventID)
	assert.Nil(t, d.OwningEventID)
	assert.Equal(t, models.TaskStatusPending, d.Status)
	assert.Equal(t, day, *d.DueDate)
}

func TestTaskListOpenToleratesCorruptDueDate(t *testing.T) {
	f := newFixture(t)
	good := f.task(t, models.Task{Title: "good", DueDate: ptr(day)})
	_, err := f.db.Exec(`INSERT INTO tasks (title, due_date) VALUES ('bad', 'not-a-date')`)
	require.NoError(t, err)
	done := f.task(t, models.Task{Title: "done", DueDate: ptr(day), Status: models.TaskStatusCompleted})

	open, err := f.tasks.ListOpen(f.ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, good.ID, open[0].ID)
	assert.Nil(t, open[1].DueDate)
	for _, task := range open {
		assert.NotEqual(t, done.ID, task.ID)
	}
}

func TestTaskRiskUpdateOnlyWhenChanged(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day)})

	changed, err := f.tasks.UpdateRisk(f.ctx, task.ID, models.RiskHigh)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.tasks.UpdateRisk(f.ctx, task.ID, models.RiskHigh)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTaskTransitionIsCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day), Status: models.TaskStatusInProgress})

	require.NoError(t, f.tasks.TransitionStatus(f.ctx, task.ID, models.TaskStatusInProgress, models.TaskStatusDelayed))
	err := f.tasks.TransitionStatus(f.ctx, task.ID, models.TaskStatusInProgress, models.TaskStatusDelayed)
	assert.ErrorIs(t, err, repository.ErrConflict)

	err = f.tasks.TransitionStatus(f.ctx, 9999, models.TaskStatusInProgress, models.TaskStatusDelayed)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskAssignAndComplete(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "ana")
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day)})

	assigned, err := f.tasks.Assign(f.ctx, task.ID, uid)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, assigned.Status)
	assert.Equal(t, uid, *assigned.AssignedTo)

	done, err := f.tasks.Complete(f.ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = f.tasks.Complete(f.ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = f.tasks.Assign(f.ctx, task.ID, uid)
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = f.tasks.Complete(f.ctx, 4242)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAlertDailyUniqueness(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user(t, "ana"), f.user(t, "bob")
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day)})

	newAlert := func(user int64, kind models.AlertKind, d time.Time) *models.Alert {
		return &models.Alert{TaskID: task.ID, UserID: user, Kind: kind, Message: "m", AlertDay: d}
	}

	created, err := f.alerts.CreateIfAbsent(f.ctx, newAlert(ana, models.AlertKindCritical, day))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.alerts.CreateIfAbsent(f.ctx, newAlert(ana, models.AlertKindCritical, day))
	require.NoError(t, err)
	assert.False(t, created, "same key same day")

	created, err = f.alerts.CreateIfAbsent(f.ctx, newAlert(bob, models.AlertKindCritical, day))
	require.NoError(t, err)
	assert.True(t, created, "other recipient has its own quota")

	created, err = f.alerts.CreateIfAbsent(f.ctx, newAlert(ana, models.AlertKindCritical, day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.True(t, created, "next day")

	// Preventive is per task per day, whoever the recipient is.
	created, err = f.alerts.CreateIfAbsent(f.ctx, newAlert(ana, models.AlertKindPreventive, day))
	require.NoError(t, err)
	assert.True(t, created)
	created, err = f.alerts.CreateIfAbsent(f.ctx, newAlert(bob, models.AlertKindPreventive, day))
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := f.alerts.Exists(f.ctx, task.ID, bob, models.AlertKindPreventive, day)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = f.alerts.Exists(f.ctx, task.ID, bob, models.AlertKindCritical, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := f.alerts.CountForTask(f.ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestAlertConcurrentInsertCreatesOne(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "ana")
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day)})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.alerts.CreateIfAbsent(f.ctx, &models.Alert{
				TaskID: task.ID, UserID: ana, Kind: models.AlertKindCritical, Message: "m", AlertDay: day,
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestAlertInboxAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ana, bob := f.user(t, "ana"), f.user(t, "bob")
	task := f.task(t, models.Task{Title: "t", DueDate: ptr(day)})

	first := &models.Alert{TaskID: task.ID, UserID: ana, Kind: models.AlertKindCritical, Message: "a", AlertDay: day}
	_, err := f.alerts.CreateIfAbsent(f.ctx, first)
	require.NoError(t, err)

	read, err := f.alerts.MarkRead(f.ctx, first.ID, ana)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	assert.Equal(t, day, read.AlertDay)

	_, err = f.alerts.MarkRead(f.ctx, first.ID, bob)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := f.alerts.ListForUser(f.ctx, ana, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Message)
}

func TestIncidentReportPausesAndResolveReactivates(t *testing.T) {
	f := newFixture(t)
	reporter := f.user(t, "rita")
	origin := f.task(t, models.Task{Title: "origin", DueDate: ptr(day.AddDate(0, 0, -3)), Status: models.TaskStatusInProgress})

	incident := models.Incident{TaskID: origin.ID, ReporterID: &reporter, Description: "sin proyector"}
	paused, err := f.incidents.Report(f.ctx, &incident)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, models.IncidentStatusReported, incident.Status)

	stored, err := f.tasks.Get(f.ctx, origin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPaused, stored.Status)

	out, err := f.incidents.Resolve(f.ctx, incident.ID, day, func(models.Task) models.TaskStatus {
		return models.TaskStatusDelayed
	})
	require.NoError(t, err)
	assert.True(t, out.Reactivated)
	assert.Equal(t, models.IncidentStatusResolved, out.Incident.Status)
	require.NotNil(t, out.Incident.ResolvedAt)
	assert.Equal(t, models.TaskStatusDelayed, out.OriginTask.Status)

	_, err = f.incidents.Resolve(f.ctx, incident.ID, day, nil)
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = f.incidents.Resolve(f.ctx, 777, day, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIncidentLinkAndLookup(t *testing.T) {
	f := newFixture(t)
	origin := f.task(t, models.Task{Title: "origin", DueDate: ptr(day)})
	solution := f.task(t, models.Task{Title: "fix", DueDate: ptr(day)})

	first := models.Incident{TaskID: origin.ID}
	second := models.Incident{TaskID: origin.ID}
	_, err := f.incidents.Report(f.ctx, &first)
	require.NoError(t, err)
	paused, err := f.incidents.Report(f.ctx, &second)
	require.NoError(t, err)
	assert.False(t, paused, "already paused")

	for _, id := range []int64{first.ID, second.ID} {
		linked, err := f.incidents.LinkSolution(f.ctx, id, solution.ID)
		require.NoError(t, err)
		assert.Equal(t, models.IncidentStatusReported, linked.Status)
		assert.Equal(t, solution.ID, *linked.SolutionTaskID)
	}

	list, err := f.incidents.ListReportedBySolutionTask(f.ctx, solution.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	stale, err := f.incidents.ListReportedWithCompletedSolution(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = f.tasks.Complete(f.ctx, solution.ID)
	require.NoError(t, err)
	stale, err = f.incidents.ListReportedWithCompletedSolution(f.ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	_, err = f.incidents.Resolve(f.ctx, first.ID, day, nil)
	require.NoError(t, err)
	_, err = f.incidents.LinkSolution(f.ctx, first.ID, solution.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestEventFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ev := f.event(t, day)
	committee := models.Committee{Name: "Prensa", EventID: ev.ID}
	require.NoError(t, f.events.CreateCommittee(f.ctx, &committee))

	open := f.task(t, models.Task{Title: "open", DueDate: ptr(day), EventID: &ev.ID, Status: models.TaskStatusInProgress})
	viaCommittee := f.task(t, models.Task{Title: "committee", DueDate: ptr(day), CommitteeID: &committee.ID})
	paused := f.task(t, models.Task{Title: "paused", DueDate: ptr(day), EventID: &ev.ID, Status: models.TaskStatusPaused})
	done := f.task(t, models.Task{Title: "done", DueDate: ptr(day), EventID: &ev.ID, Status: models.TaskStatusCompleted})
	other := f.task(t, models.Task{Title: "other", DueDate: ptr(day)})

	due, err := f.events.ListDueForFinalization(f.ctx, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, due)

	out, err := f.events.Finalize(f.ctx, ev.ID, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, out.Finalized, "event has not ended yet")

	due, err = f.events.ListDueForFinalization(f.ctx, day)
	require.NoError(t, err)
	require.Len(t, due, 1)

	out, err = f.events.Finalize(f.ctx, ev.ID, day)
	require.NoError(t, err)
	assert.True(t, out.Finalized)
	assert.EqualValues(t, 3, out.TasksDelayed)

	for id, want := range map[int64]models.TaskStatus{
		open.ID:         models.TaskStatusDelayed,
		viaCommittee.ID: models.TaskStatusDelayed,
		paused.ID:       models.TaskStatusDelayed,
		done.ID:         models.TaskStatusCompleted,
		other.ID:        models.TaskStatusPending,
	} {
		got, err := f.tasks.Get(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "task %d", id)
	}

	out, err = f.events.Finalize(f.ctx, ev.ID, day)
	require.NoError(t, err)
	assert.False(t, out.Finalized)
	assert.Zero(t, out.TasksDelayed)

	stored, err := f.events.Get(f.ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFinished, stored.Status)
	assert.Equal(t, day, stored.EndDate)
}

func TestNotificationOutboxLifecycle(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "ana")

	created, err := f.outbox.Create(f.ctx, repository.CreateNotificationParams{
		RecipientID: ana,
		Kind:        models.NotificationAlertCritical,
		TaskID:      ptr(int64(5)),
		Title:       " Alerta ",
		Message:     "m",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Alerta", created.Title)
	assert.Nil(t, created.DeliveredAt)

	claimed, err := f.outbox.ClaimPending(f.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	again, err := f.outbox.ClaimPending(f.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased rows are not claimed twice")

	require.NoError(t, f.outbox.MarkFailed(f.ctx, created.ID, "smtp down", 0, false))
	again, err = f.outbox.ClaimPending(f.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 2, again[0].Attempts)
	require.NotNil(t, again[0].LastError)

	require.NoError(t, f.outbox.MarkDelivered(f.ctx, created.ID))
	list, err := f.outbox.ListForRecipient(f.ctx, ana, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].DeliveredAt)
	assert.Nil(t, list[0].LastError)

	empty, err := f.outbox.ClaimPending(f.ctx, 10, 3, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNotificationAbandonAndMaxAttempts(t *testing.T) {
	f := newFixture(t)
	a, err := f.outbox.Create(f.ctx, repository.CreateNotificationParams{RecipientID: 1, Kind: models.NotificationTaskAssigned, Title: "a"})
	require.NoError(t, err)
	b, err := f.outbox.Create(f.ctx, repository.CreateNotificationParams{RecipientID: 1, Kind: models.NotificationTaskAssigned, Title: "b"})
	require.NoError(t, err)

	_, err = f.outbox.ClaimPending(f.ctx, 10, 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, f.outbox.MarkFailed(f.ctx, a.ID, "no contact channel", time.Hour, true))
	require.NoError(t, f.outbox.MarkFailed(f.ctx, b.ID, "timeout", 0, false))

	claimed, err := f.outbox.ClaimPending(f.ctx, 10, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed, "abandoned and exhausted rows stay put")
}

func TestNotificationRetryWaitsForBackoff(t *testing.T) {
	f := newFixture(t)
	n, err := f.outbox.Create(f.ctx, repository.CreateNotificationParams{RecipientID: 1, Kind: models.NotificationAlertPreventive, Title: "n"})
	require.NoError(t, err)

	claimed, err := f.outbox.ClaimPending(f.ctx, 10, 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, f.outbox.MarkFailed(f.ctx, n.ID, "smtp down", time.Hour, false))

	claimed, err = f.outbox.ClaimPending(f.ctx, 10, 5, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed, "failed rows wait out their backoff")

	_, err = f.db.ExecContext(f.ctx, `UPDATE notifications SET lease_expires = 0 WHERE id = $1`, n.ID)
	require.NoError(t, err)
	claimed, err = f.outbox.ClaimPending(f.ctx, 10, 5, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
}

func TestSweepRunHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	runs := repository.NewSweepRunRepository(f.db)
	lima, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)

	record := func(id string, started time.Time, status models.SweepRunStatus, alerts int) {
		run := models.SweepRun{ID: id, TriggeredBy: "schedule", StartedAt: started}
		require.NoError(t, runs.Start(f.ctx, &run))
		assert.Equal(t, models.SweepRunRunning, run.Status)
		finished := started.Add(time.Second)
		run.FinishedAt = &finished
		run.Status = status
		run.AlertsCreated = alerts
		require.NoError(t, runs.Finish(f.ctx, run))
	}
	// 03:00 UTC on the 17th is still the 16th in Lima.
	record("a0c1a1d6-0001-4000-8000-000000000001", day.Add(3*time.Hour), models.SweepRunSucceeded, 2)
	record("a0c1a1d6-0001-4000-8000-000000000002", day.Add(12*time.Hour), models.SweepRunFailed, 0)
	record("a0c1a1d6-0001-4000-8000-000000000003", day.Add(13*time.Hour), models.SweepRunSucceeded, 1)
	record("a0c1a1d6-0001-4000-8000-000000000004", day.AddDate(0, 0, -30), models.SweepRunSucceeded, 9)

	again := models.SweepRun{ID: "a0c1a1d6-0001-4000-8000-000000000001", Status: models.SweepRunFailed}
	assert.ErrorIs(t, runs.Finish(f.ctx, again), repository.ErrConflict)
	assert.ErrorIs(t, runs.Finish(f.ctx, models.SweepRun{ID: "a0c1a1d6-0001-4000-8000-0000000000ff"}), repository.ErrNotFound)

	listed, err := runs.List(f.ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "a0c1a1d6-0001-4000-8000-000000000003", listed[0].ID)
	require.NotNil(t, listed[0].FinishedAt)

	failed, err := runs.Get(f.ctx, "a0c1a1d6-0001-4000-8000-000000000002")
	require.NoError(t, err)
	assert.Equal(t, models.SweepRunFailed, failed.Status)

	stat, err := runs.Stats(f.ctx, day.AddDate(0, 0, -6), lima)
	require.NoError(t, err)
	assert.Equal(t, 3, stat.Total)
	assert.Equal(t, 2, stat.Succeeded)
	assert.Equal(t, 1, stat.Failed)
	assert.Equal(t, 3, stat.AlertsCreated)
	assert.InDelta(t, 2.0/3.0, stat.SuccessRate, 1e-9)
	require.Len(t, stat.PerDay, 2)
	assert.Equal(t, day.AddDate(0, 0, -1), stat.PerDay[0].Day)
	assert.Equal(t, 2, stat.PerDay[0].AlertsCreated)
	assert.Equal(t, 1, stat.PerDay[1].Failed)
}
