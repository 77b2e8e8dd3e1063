package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/repository"
)

type AlertHandler struct {
	alerts repository.AlertRepository
	logger zerolog.Logger
}

func NewAlertHandler(alerts repository.AlertRepository, logger zerolog.Logger) *AlertHandler {
	return &AlertHandler{
		alerts: alerts,
		logger: logger.With().Str("handler", "alert").Logger(),
	}
}

// List returns a user's alerts, unread first.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if !authz.CanActFor(r, userID) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
		return
	}

	alerts, err := h.alerts.ListForUser(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		writeError(w, h.logger, err, "Failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// MarkRead marks one of the caller's own alerts as read.
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	alertID, ok := pathID(r, "alertID")
	if !ok {
		http.Error(w, "Invalid alert ID", http.StatusBadRequest)
		return
	}
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Missing user context", http.StatusUnauthorized)
		return
	}

	alert, err := h.alerts.MarkRead(r.Context(), alertID, userID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to update alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
