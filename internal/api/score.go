package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/resourceiq/resourceiq/internal/score"
)

// BestFitRanker ranks resource profiles against a task description.
type BestFitRanker interface {
	BestFits(ctx context.Context, input score.BestFitInput) ([]score.ScoreProfile, error)
}

// scoreHandler serves the staffing recommendation route.
type scoreHandler struct {
	ranker BestFitRanker
	logger *slog.Logger
}

// bestFits handles POST /api/v1/score/best-fits.
func (h *scoreHandler) bestFits(w http.ResponseWriter, r *http.Request) {
	var input score.BestFitInput
	if err := decodeJSON(w, r, &input); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if strings.TrimSpace(input.TaskTitle) == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "task_title is required", h.logger)
		return
	}

	ranked, err := h.ranker.BestFits(r.Context(), input)
	if err != nil {
		h.logger.Error("ranking best fits", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error(), h.logger)
		return
	}
	if ranked == nil {
		ranked = []score.ScoreProfile{}
	}
	WriteJSON(w, http.StatusOK, ranked)
}
