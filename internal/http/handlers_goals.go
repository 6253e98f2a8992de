package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

type goalPayload struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Currency     string          `json:"currency"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	Deadline     time.Time       `json:"deadline"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt,omitempty"`
}

func toGoalPayload(g core.Goal) goalPayload {
	return goalPayload{
		ID:           g.ID,
		Name:         g.Name,
		Currency:     g.Currency,
		TargetAmount: g.TargetAmount,
		Deadline:     g.Deadline,
		Status:       string(g.Status),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func (p goalPayload) toDomain() core.Goal {
	return core.Goal{
		ID:           p.ID,
		Name:         p.Name,
		Currency:     p.Currency,
		TargetAmount: p.TargetAmount,
		Deadline:     p.Deadline,
		Status:       core.GoalStatus(p.Status),
	}
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	var statuses []core.GoalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = append(statuses, core.GoalStatus(raw))
	}
	goals, err := s.goals.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]goalPayload, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalPayload(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var body goalPayload
	if !decodeBody(w, r, &body) {
		return
	}
	created, err := s.goals.Create(r.Context(), body.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalPayload(created))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.goals.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalPayload(goal))
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var body goalPayload
	if !decodeBody(w, r, &body) {
		return
	}
	body.ID = r.PathValue("id")
	updated, err := s.goals.Update(r.Context(), body.toDomain())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalPayload(updated))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.goals.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGoalStatus(w http.ResponseWriter, r *http.Request) {
	req, err := s.goals.Status(r.Context(), r.PathValue("id"), s.conv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requiredMonthly": req.Monthly,
		"progress":        req.Progress,
		"monthsRemaining": req.MonthsRemaining,
		"status":          string(req.Status),
	})
}
