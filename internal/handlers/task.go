package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/models"
)

// TaskService is the part of the engine the task endpoints drive.
type TaskService interface {
	AssignTask(ctx context.Context, taskID, userID int64) (models.Task, error)
	CompleteTask(ctx context.Context, taskID int64) (engine.CompletionResult, error)
	ReportIncident(ctx context.Context, taskID int64, reporterID *int64, description string) (engine.ReportResult, error)
}

type TaskHandler struct {
	service TaskService
	logger  zerolog.Logger
}

func NewTaskHandler(service TaskService, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger.With().Str("handler", "task").Logger(),
	}
}

type assignRequest struct {
	UserID int64 `json:"user_id"`
}

func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "taskID")
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.service.AssignTask(r.Context(), taskID, req.UserID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to assign task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "taskID")
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}

	res, err := h.service.CompleteTask(r.Context(), taskID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to complete task")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reportIncidentRequest struct {
	Description string `json:"description"`
}

func (h *TaskHandler) ReportIncident(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "taskID")
	if !ok {
		http.Error(w, "Invalid task ID", http.StatusBadRequest)
		return
	}
	var req reportIncidentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var reporter *int64
	if uid, ok := authz.UserIDFromRequest(r); ok {
		reporter = &uid
	}
	res, err := h.service.ReportIncident(r.Context(), taskID, reporter, req.Description)
	if err != nil {
		writeError(w, h.logger, err, "Failed to report incident")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
