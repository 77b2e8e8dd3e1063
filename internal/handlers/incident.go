package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
)

type IncidentService interface {
	LinkSolutionTask(ctx context.Context, incidentID, solutionTaskID int64) (models.Incident, error)
	ResolveIncident(ctx context.Context, incidentID int64) (repository.ResolveOutcome, error)
}

type IncidentHandler struct {
	service IncidentService
	logger  zerolog.Logger
}

func NewIncidentHandler(service IncidentService, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		service: service,
		logger:  logger.With().Str("handler", "incident").Logger(),
	}
}

type linkSolutionRequest struct {
	SolutionTaskID int64 `json:"solution_task_id"`
}

func (h *IncidentHandler) LinkSolution(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(r, "incidentID")
	if !ok {
		http.Error(w, "Invalid incident ID", http.StatusBadRequest)
		return
	}
	var req linkSolutionRequest
	if err := decodeJSON(r, &req); err != nil || req.SolutionTaskID <= 0 {
		http.Error(w, "solution_task_id is required", http.StatusBadRequest)
		return
	}

	incident, err := h.service.LinkSolutionTask(r.Context(), incidentID, req.SolutionTaskID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to link solution task")
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

type resolveResponse struct {
	Incident    models.Incident `json:"incident"`
	OriginTask  models.Task     `json:"origin_task"`
	Reactivated bool            `json:"reactivated"`
}

func (h *IncidentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(r, "incidentID")
	if !ok {
		http.Error(w, "Invalid incident ID", http.StatusBadRequest)
		return
	}

	out, err := h.service.ResolveIncident(r.Context(), incidentID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to resolve incident")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Incident:    out.Incident,
		OriginTask:  out.OriginTask,
		Reactivated: out.Reactivated,
	})
}
