package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

type executionPayload struct {
	ID           string     `json:"id"`
	Month        core.Month `json:"month"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CanUndoUntil time.Time  `json:"canUndoUntil"`
}

func toExecutionPayload(rec core.ExecutionRecord) executionPayload {
	return executionPayload{
		ID:           rec.ID,
		Month:        rec.Month,
		Status:       string(rec.Status),
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
		CanUndoUntil: rec.CanUndoUntil,
	}
}

func (s *Server) handleStartTracking(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	record, err := s.tracker.StartTracking(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExecutionPayload(record))
}

func (s *Server) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	record, err := s.tracker.MarkComplete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionPayload(record))
}

func (s *Server) handleUndoStart(w http.ResponseWriter, r *http.Request) {
	record, err := s.tracker.UndoStartTracking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionPayload(record))
}

func (s *Server) handleUndoCompletion(w http.ResponseWriter, r *http.Request) {
	record, err := s.tracker.UndoCompletion(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionPayload(record))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "currency query parameter required"})
		return
	}

	view, err := s.tracker.Overview(r.Context(), month, currency)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("X-View-Generation", strconv.FormatUint(view.Generation, 10))
	writeJSON(w, http.StatusOK, view)
}

type contributionPayload struct {
	ID           string          `json:"id"`
	GoalID       string          `json:"goalId"`
	AssetID      string          `json:"assetId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	RecordID     *string         `json:"recordId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
}

func (s *Server) handleRecordContribution(w http.ResponseWriter, r *http.Request) {
	var body contributionPayload
	if !decodeBody(w, r, &body) {
		return
	}
	created, err := s.contrib.Record(r.Context(), core.Contribution{
		ID:           body.ID,
		GoalID:       body.GoalID,
		AssetID:      body.AssetID,
		Amount:       body.Amount,
		Currency:     body.Currency,
		ExchangeRate: body.ExchangeRate,
		RecordID:     body.RecordID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	body.ID = created.ID
	body.CreatedAt = created.CreatedAt
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	contribs, err := s.contrib.ListByRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]contributionPayload, 0, len(contribs))
	for _, c := range contribs {
		out = append(out, contributionPayload{
			ID:           c.ID,
			GoalID:       c.GoalID,
			AssetID:      c.AssetID,
			Amount:       c.Amount,
			Currency:     c.Currency,
			ExchangeRate: c.ExchangeRate,
			RecordID:     c.RecordID,
			CreatedAt:    c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
