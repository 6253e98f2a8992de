package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type allocationRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type historyPayload struct {
	GoalID    string          `json:"goalId"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *Server) handleSetAllocation(w http.ResponseWriter, r *http.Request) {
	var body allocationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	err := s.ledger.SetAllocation(r.Context(), r.PathValue("id"), r.PathValue("goalID"), body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveAllocation(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.RemoveAllocation(r.Context(), r.PathValue("id"), r.PathValue("goalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkAllocations(w http.ResponseWriter, r *http.Request) {
	var body map[string]decimal.Decimal
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.ledger.BulkUpdate(r.Context(), r.PathValue("id"), body); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllocationHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := s.ledger.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]historyPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyPayload{GoalID: e.GoalID, Amount: e.Amount, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
