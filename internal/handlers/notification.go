package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/models"
	"github.com/stanstork/taskwatch/internal/notification"
)

type NotificationHandler struct {
	service notification.Service
	logger  zerolog.Logger
}

func NewNotificationHandler(service notification.Service, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("handler", "notification").Logger(),
	}
}

// List shows a user's outbox, including delivery state.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if !authz.CanActFor(r, userID) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
		return
	}

	notifications, err := h.service.ListForRecipient(r.Context(), userID, queryLimit(r, 25))
	if err != nil {
		writeError(w, h.logger, err, "Failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
	})
}
