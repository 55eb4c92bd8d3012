package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/okulov/selftrack/internal/goals"
)

type CreateGoalRequest struct {
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	TargetDate string   `json:"target_date"` // RFC3339, optional
	Milestones []string `json:"milestones"`  // descriptions, in order
}

// GoalResponse pairs a goal with its derived progress.
type GoalResponse struct {
	goals.Goal
	Progress goals.Progress `json:"progress"`
}

func handleCreateGoal(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateGoalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		var targetDate time.Time
		if req.TargetDate != "" {
			t, err := time.Parse(time.RFC3339, req.TargetDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid target_date: %v", err)
				return
			}
			targetDate = t.UTC()
		}

		g := goals.Goal{
			ID:         uuid.New().String(),
			Title:      req.Title,
			Category:   req.Category,
			TargetDate: targetDate,
			Milestones: make([]goals.Milestone, len(req.Milestones)),
		}
		for i, desc := range req.Milestones {
			g.Milestones[i] = goals.Milestone{
				ID:          uuid.New().String(),
				Description: desc,
			}
		}

		if err := deps.Sessions.Store().SaveGoal(s.ID, g, time.Now().UTC()); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, GoalResponse{Goal: g, Progress: goals.Compute(g)})
	}
}

func handleListGoals(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		list, err := deps.Sessions.Store().Goals(s.ID)
		if err != nil {
			engineError(w, err)
			return
		}

		out := make([]GoalResponse, len(list))
		for i, g := range list {
			out[i] = GoalResponse{Goal: g, Progress: goals.Compute(g)}
		}

		writeJSON(w, out)
	}
}

func handleGoalBreakdown(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		list, err := deps.Sessions.Store().Goals(s.ID)
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, goals.CategoryBreakdown(list))
	}
}

type SetMilestoneRequest struct {
	Completed bool `json:"completed"`
}

func handleSetMilestone(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}
		gid := chi.URLParam(r, "gid")
		mid := chi.URLParam(r, "mid")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SetMilestoneRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		store := deps.Sessions.Store()
		if err := store.SetMilestoneCompleted(s.ID, gid, mid, req.Completed); err != nil {
			engineError(w, err)
			return
		}

		g, err := store.GetGoal(s.ID, gid)
		if err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, GoalResponse{Goal: g, Progress: goals.Compute(g)})
	}
}

func handleDeleteGoal(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := resolveSession(deps, w, r)
		if !ok {
			return
		}

		if err := deps.Sessions.Store().DeleteGoal(s.ID, chi.URLParam(r, "gid")); err != nil {
			engineError(w, err)
			return
		}

		writeJSON(w, map[string]string{"status": "deleted"})
	}
}
