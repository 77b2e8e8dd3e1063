package engine

import (
	"fmt"
	"strings"

	"github.com/stanstork/taskwatch/internal/models"
)

const criticalAssigneeMessage = "tarea vencida, atención inmediata"

func preventiveMessage(task models.Task) string {
	return fmt.Sprintf("La tarea %q vence el %s, revisa su avance.", title(task), dueDay(task))
}

func criticalCoordinatorMessage(task models.Task) string {
	if task.IsAssigned() {
		return fmt.Sprintf("La tarea %q asignada al usuario #%d está en riesgo alto (vence el %s).",
			title(task), *task.AssignedTo, dueDay(task))
	}
	return fmt.Sprintf("La tarea %q está en riesgo alto y no tiene responsable asignado (vence el %s).",
		title(task), dueDay(task))
}

func warnf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func title(task models.Task) string {
	if t := strings.TrimSpace(task.Title); t != "" {
		return t
	}
	return fmt.Sprintf("#%d", task.ID)
}

func dueDay(task models.Task) string {
	if task.DueDate == nil {
		return "?"
	}
	return task.DueDate.Format("2006-01-02")
}
