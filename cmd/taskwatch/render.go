package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/worker"
)

func renderSweep(out io.Writer, res engine.SweepResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Run", res.RunID.String()},
		{"Tasks scanned", res.TasksScanned},
		{"Tasks updated", res.TasksUpdated},
		{"Status changes", res.StatusChanges},
		{"Alerts created", res.AlertsCreated},
		{"Events finalized", res.EventsFinalized},
		{"Tasks delayed by events", res.TasksDelayedByEvents},
		{"Incidents resolved", res.IncidentsResolved},
		{"Took", res.FinishedAt.Sub(res.StartedAt).String()},
	})
	tw.Render()

	if len(res.Warnings) == 0 {
		return
	}
	warnings := table.NewWriter()
	warnings.SetOutputMirror(out)
	warnings.AppendHeader(table.Row{"#", "Warning"})
	for i, w := range res.Warnings {
		warnings.AppendRow(table.Row{i + 1, w})
	}
	warnings.Render()
}

func renderDrain(out io.Writer, res worker.DrainResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Claimed", "Delivered", "Failed", "Abandoned"})
	tw.AppendRow(table.Row{res.Claimed, res.Delivered, res.Failed, res.Abandoned})
	tw.Render()
}

func renderRuns(out io.Writer, runs []models.SweepRun, stat models.SweepRunStat) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Run", "Trigger", "Status", "Started", "Took", "Scanned", "Alerts", "Warnings"})
	for _, r := range runs {
		took := ""
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		tw.AppendRow(table.Row{
			r.ID, r.TriggeredBy, r.Status, r.StartedAt.Format(time.RFC3339), took,
			r.TasksScanned, r.AlertsCreated, r.Warnings,
		})
	}
	tw.AppendFooter(table.Row{
		"", "", fmt.Sprintf("%d ok / %d failed", stat.Succeeded, stat.Failed),
		fmt.Sprintf("%.0f%% success", stat.SuccessRate*100), "", "", stat.AlertsCreated, "",
	})
	tw.Render()
}

func renderTasks(out io.Writer, tasks []models.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Risk", "Due", "Assignee"})
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		assignee := ""
		if t.AssignedTo != nil {
			assignee = formatID(*t.AssignedTo)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.RiskLevel, due, assignee})
	}
	tw.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
