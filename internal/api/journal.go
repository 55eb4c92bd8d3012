package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okulov/selftrack/internal/journal"
)

type JournalEntryRequest struct {
	Text string `json:"text"`
}

func handleCreateJournalEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req JournalEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		entry := journal.Entry{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			Text:      req.Text,
			Score:     journal.ScoreText(req.Text),
		}

		if err := deps.Sessions.Store().SaveJournalEntry(s.ID, entry); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, entry)
	}
}

func handleUpdateJournalEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		eid := chi.URLParam(r, "eid")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req JournalEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		// Editing re-scores the text but keeps the original timestamp.
		score := journal.ScoreText(req.Text)
		if err := deps.Sessions.Store().UpdateJournalEntry(s.ID, eid, req.Text, score); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, map[string]any{
			"id":    eid,
			"text":  req.Text,
			"score": score,
		})
	}
}

func handleJournalTrend(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		entries, err := deps.Sessions.Store().JournalEntries(s.ID)
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, journal.Trend(entries))
	}
}

func handleDeleteJournalEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		if err := deps.Sessions.Store().DeleteJournalEntry(s.ID, chi.URLParam(r, "eid")); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
