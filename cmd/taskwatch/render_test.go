package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/worker"
)

func TestRenderSweep(t *testing.T) {
	start := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	res := engine.SweepResult{
		RunID:         uuid.New(),
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
		TasksScanned:  12,
		AlertsCreated: 4,
		Warnings:      []string{"task 9: no owning event, skipped"},
	}

	var buf bytes.Buffer
	renderSweep(&buf, res)

	out := buf.String()
	lines := strings.Split(out, "\n")
	var runLine string
	for _, l := range lines {
		if strings.Contains(l, "Run ") {
			runLine = l
		}
	}
	assert.Contains(t, runLine, res.RunID.String(), "run id must stay on one line")
	assert.Contains(t, out, "Alerts created")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "no owning event")
}

func TestRenderSweepWithoutWarnings(t *testing.T) {
	var buf bytes.Buffer
	renderSweep(&buf, engine.SweepResult{RunID: uuid.New()})
	assert.NotContains(t, buf.String(), "WARNING")
}

func TestRenderDrainAndTasks(t *testing.T) {
	var buf bytes.Buffer
	renderDrain(&buf, worker.DrainResult{Claimed: 3, Delivered: 2, Abandoned: 1})
	assert.Contains(t, buf.String(), "DELIVERED")

	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	assignee := int64(7)
	buf.Reset()
	renderTasks(&buf, []models.Task{{ID: 1, Title: "Catering", Status: models.TaskStatusInProgress, RiskLevel: models.RiskMedium, DueDate: &due, AssignedTo: &assignee}})
	assert.Contains(t, buf.String(), "2026-10-20")
	assert.Contains(t, buf.String(), "in_progress")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestRenderRuns(t *testing.T) {
	start := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	runs := []models.SweepRun{
		{ID: "run-1", TriggeredBy: "schedule", Status: models.SweepRunSucceeded, StartedAt: start, FinishedAt: &end, AlertsCreated: 3},
		{ID: "run-2", TriggeredBy: "api", Status: models.SweepRunRunning, StartedAt: end},
	}
	stat := models.SweepRunStat{Total: 2, Succeeded: 1, Running: 1, SuccessRate: 1, AlertsCreated: 3}

	var buf bytes.Buffer
	renderRuns(&buf, runs, stat)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "2s")
	assert.Contains(t, out, "100% SUCCESS")
}
