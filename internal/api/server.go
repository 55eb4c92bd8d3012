// Package api exposes the tracker over HTTP and MCP. Every route below
// /sessions/{sid} resolves the session first; handlers translate engine
// sentinel errors into the JSON error envelope.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okulov/selftrack/internal/dataset"
	"github.com/okulov/selftrack/internal/session"
	"github.com/okulov/selftrack/internal/skills"
	"github.com/okulov/selftrack/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB, JSON bodies only; uploads have their own cap

type AppDeps struct {
	Sessions       *session.Manager
	MaxUploadBytes int
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Post("/sessions", handleCreateSession(deps))
	r.Delete("/sessions/{sid}", handleDeleteSession(deps))

	r.Post("/sessions/{sid}/dataset", handleUploadDataset(deps))
	r.Get("/sessions/{sid}/dataset", handlePreviewDataset(deps))
	r.Get("/sessions/{sid}/dataset/summary", handleDatasetSummary(deps))
	r.Post("/sessions/{sid}/dataset/clean", handleCleanDataset(deps))
	r.Get("/sessions/{sid}/dataset/chart", handleDatasetChart(deps))
	r.Get("/sessions/{sid}/dataset/export", handleExportDataset(deps))

	r.Post("/sessions/{sid}/goals", handleCreateGoal(deps))
	r.Get("/sessions/{sid}/goals", handleListGoals(deps))
	r.Get("/sessions/{sid}/goals/breakdown", handleGoalBreakdown(deps))
	r.Patch("/sessions/{sid}/goals/{gid}/milestones/{mid}", handleSetMilestone(deps))
	r.Delete("/sessions/{sid}/goals/{gid}", handleDeleteGoal(deps))

	r.Post("/sessions/{sid}/journal", handleCreateJournalEntry(deps))
	r.Put("/sessions/{sid}/journal/{eid}", handleUpdateJournalEntry(deps))
	r.Get("/sessions/{sid}/journal/trend", handleJournalTrend(deps))
	r.Delete("/sessions/{sid}/journal/{eid}", handleDeleteJournalEntry(deps))

	r.Post("/sessions/{sid}/skills", handleCreateSkill(deps))
	r.Post("/sessions/{sid}/skills/{kid}/levels", handleRecordSkillLevel(deps))
	r.Get("/sessions/{sid}/skills/radar", handleSkillRadar(deps))
	r.Get("/sessions/{sid}/skills/{kid}/trend", handleSkillTrend(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sessions.Create(time.Now().UTC())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":         s.ID,
			"created_at": s.CreatedAt.Format(time.RFC3339),
		})
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Sessions.Delete(chi.URLParam(r, "sid"))
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// resolveSession looks up the {sid} route param and refreshes the session's
// idle timer. On failure the error response has already been written.
func resolveSession(deps AppDeps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := chi.URLParam(r, "sid")
	s, err := deps.Sessions.Touch(sid, time.Now().UTC())
	if errors.Is(err, session.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "session not found")
		return nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve session: %v", err)
		return nil, false
	}
	return s, true
}

// engineError maps engine sentinel errors onto HTTP status codes. Unknown
// columns are addressing errors (404), bad values and types are client
// errors (400), anything else is a server fault.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dataset.ErrColumnNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, dataset.ErrTypeMismatch):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, skills.ErrLevelOutOfRange):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
