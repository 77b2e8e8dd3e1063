package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/taskwatch/internal/engine"
	"github.com/stanstork/taskwatch/internal/models"
)

type Sweeper interface {
	RunSweep(ctx context.Context, trigger string) (engine.SweepResult, error)
	SweepHistory(ctx context.Context, limit, offset int) ([]models.SweepRun, error)
	SweepStats(ctx context.Context, days int) (models.SweepRunStat, error)
}

type SweepHandler struct {
	sweeper Sweeper
	logger  zerolog.Logger
}

func NewSweepHandler(sweeper Sweeper, logger zerolog.Logger) *SweepHandler {
	return &SweepHandler{
		sweeper: sweeper,
		logger:  logger.With().Str("handler", "sweep").Logger(),
	}
}

type sweepResponse struct {
	engine.SweepResult
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// Run executes a sweep synchronously. Per-task problems come back as
// warnings with 200; 500 means the sweep could not finish.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.RunSweep(r.Context(), engine.TriggerAPI)
	body := sweepResponse{SweepResult: res, Summary: res.Summary()}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", res.RunID.String()).Msg("sweep failed")
		body.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *SweepHandler) History(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("offset")))
	runs, err := h.sweeper.SweepHistory(r.Context(), queryLimit(r, 20), offset)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list sweep runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// Stats aggregates sweeps over the last ?days= calendar days (default 7).
func (h *SweepHandler) Stats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			http.Error(w, "Invalid days", http.StatusBadRequest)
			return
		}
		days = parsed
	}
	stat, err := h.sweeper.SweepStats(r.Context(), days)
	if err != nil {
		writeError(w, h.logger, err, "Failed to aggregate sweep runs")
		return
	}
	writeJSON(w, http.StatusOK, stat)
}
