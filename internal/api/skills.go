package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okulov/selftrack/internal/skills"
)

type CreateSkillRequest struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Level       float64 `json:"level"`
	TargetLevel float64 `json:"target_level"`
}

// SkillResponse pairs a skill with its progress toward the target level.
type SkillResponse struct {
	*skills.Skill
	Progress int `json:"progress"`
}

func handleCreateSkill(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateSkillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		sk, err := skills.New(uuid.New().String(), req.Name, req.Category, req.Level, req.TargetLevel, time.Now().UTC())
		if err != nil {
			engineError(w, err)
			return
		}

		if err := deps.Sessions.Store().SaveSkill(s.ID, sk); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, SkillResponse{Skill: sk, Progress: sk.Progress()})
	}
}

type RecordLevelRequest struct {
	Level float64 `json:"level"`
}

func handleRecordSkillLevel(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		kid := chi.URLParam(r, "kid")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req RecordLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		store := deps.Sessions.Store()
		sk, err := store.GetSkill(s.ID, kid)
		if err != nil {
			engineError(w, err)
			return
		}

		at := time.Now().UTC()
		if err := sk.RecordLevel(req.Level, at); err != nil {
			engineError(w, err)
			return
		}

		if err := store.RecordSkillLevel(s.ID, kid, skills.HistoryPoint{Timestamp: at, Level: req.Level}); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, SkillResponse{Skill: sk, Progress: sk.Progress()})
	}
}

func handleSkillRadar(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		list, err := deps.Sessions.Store().Skills(s.ID)
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, skills.RadarCoordinates(list))
	}
}

func handleSkillTrend(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		sk, err := deps.Sessions.Store().GetSkill(s.ID, chi.URLParam(r, "kid"))
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, sk.Trend())
	}
}
