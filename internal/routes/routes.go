package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stanstork/taskwatch/internal/authz"
	"github.com/stanstork/taskwatch/internal/handlers"
	"github.com/stanstork/taskwatch/internal/models"
)

type Handlers struct {
	Auth          *authz.Authenticator
	Health        *handlers.HealthHandler
	Tasks         *handlers.TaskHandler
	Incidents     *handlers.IncidentHandler
	Sweeps        *handlers.SweepHandler
	Alerts        *handlers.AlertHandler
	Notifications *handlers.NotificationHandler
}

// NewRouter sets up the API routes. Everything under /api needs a bearer
// token; state-changing coordination endpoints need a coordinator.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health.Check).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.Auth.Middleware)

	coordinator := func(fn http.HandlerFunc) http.Handler {
		return authz.RequireRoleHandler(models.RoleCoordinator, fn)
	}

	api.Handle("/sweeps", coordinator(h.Sweeps.Run)).Methods(http.MethodPost)
	api.Handle("/sweeps", coordinator(h.Sweeps.History)).Methods(http.MethodGet)
	api.Handle("/sweeps/stats", coordinator(h.Sweeps.Stats)).Methods(http.MethodGet)

	api.Handle("/tasks/{taskID:[0-9]+}/assign", coordinator(h.Tasks.Assign)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/complete", h.Tasks.Complete).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID:[0-9]+}/incidents", h.Tasks.ReportIncident).Methods(http.MethodPost)

	api.Handle("/incidents/{incidentID:[0-9]+}/solution", coordinator(h.Incidents.LinkSolution)).Methods(http.MethodPost)
	api.Handle("/incidents/{incidentID:[0-9]+}/resolve", coordinator(h.Incidents.Resolve)).Methods(http.MethodPost)

	api.HandleFunc("/users/{userID:[0-9]+}/alerts", h.Alerts.List).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{alertID:[0-9]+}/read", h.Alerts.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/users/{userID:[0-9]+}/notifications", h.Notifications.List).Methods(http.MethodGet)

	return router
}
