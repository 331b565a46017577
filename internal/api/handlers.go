// Package api exposes the HTTP trigger for the daily streak job.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"example.com/streaks/internal/auth"
	"example.com/streaks/internal/job"
)

// JobRunner executes one streak computation pass.
type JobRunner interface {
	Run(ctx context.Context, now time.Time) (job.Report, error)
}

// Handler coordinates HTTP requests with the job runner.
type Handler struct {
	runner JobRunner
}

// NewHandler builds a Handler.
func NewHandler(runner JobRunner) *Handler {
	return &Handler{runner: runner}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/jobs/daily-streaks", h.dailyStreaks)
	mux.HandleFunc("/healthz", healthz)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// TriggerRequest optionally overrides the reference instant, letting an
// operator re-run the job for a past day.
type TriggerRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

func (h *Handler) dailyStreaks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRunJobs) {
		writeError(w, http.StatusForbidden, "forbidden", "scope streaks:run required")
		return
	}

	now := time.Now().UTC()
	if r.Body != nil && r.ContentLength != 0 {
		var req TriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		if req.Now != nil {
			now = req.Now.UTC()
		}
	}

	report, err := h.runner.Run(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	// Per-entity failures are an operational concern, not the caller's:
	// the run completed, so this is a 200 either way.
	writeJSON(w, http.StatusOK, report)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
