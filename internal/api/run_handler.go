package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giftly/metrics-reporter/internal/engine"
	"github.com/giftly/metrics-reporter/internal/period"
	"github.com/giftly/metrics-reporter/internal/pkg/logger"
)

// handleRunReport triggers a report run for a cadence. The run executes
// synchronously; delivery failures do not fail the request, they show up
// in the returned outcomes.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	var req engine.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DryRun && req.DryRunAddress == "" {
		respondError(w, http.StatusBadRequest, "dry_run_address is required for dry runs")
		return
	}

	result, err := s.runs.RunLocked(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, period.ErrInvalidCadence):
			respondError(w, http.StatusBadRequest, "cadence must be daily, weekly or monthly")
		case errors.Is(err, engine.ErrRunInProgress):
			respondError(w, http.StatusConflict, err.Error())
		default:
			logger.Error("report run failed", "cadence", string(req.Cadence), "error", err.Error())
			// The run itself may have partially completed; surface what we have.
			if result != nil {
				respondJSON(w, http.StatusOK, map[string]any{
					"success": true,
					"status":  result.Status,
					"run":     result,
					"warning": err.Error(),
				})
				return
			}
			respondError(w, http.StatusInternalServerError, "report run failed")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  result.Status,
		"run":     result,
	})
}
