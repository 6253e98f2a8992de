package http

import (
	"net/http"

	"github.com/shopspring/decimal"
)

type budgetRequest struct {
	Budget   decimal.Decimal `json:"budget"`
	Currency string          `json:"currency"`
}

func (s *Server) handleFeasibility(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body budgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	res, err := s.budget.CheckFeasibility(r.Context(), month, body.Budget, body.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateSchedule(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body budgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	sched, err := s.budget.GenerateSchedule(r.Context(), month, body.Budget, body.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// handleApplySchedule regenerates the schedule from current state and writes
// its first month. Accepting a client-supplied schedule would let a stale one
// slip through the signature check.
func (s *Server) handleApplySchedule(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body budgetRequest
	if !decodeBody(w, r, &body) {
		return
	}

	sched, err := s.budget.GenerateSchedule(r.Context(), month, body.Budget, body.Currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.budget.ApplySchedule(r.Context(), sched); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleVerifySchedule(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	err := s.budget.VerifyApplied(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"current": true})
}
