package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

type planPayload struct {
	ID             string           `json:"id"`
	GoalID         string           `json:"goalId"`
	Month          core.Month       `json:"month"`
	RequiredAmount decimal.Decimal  `json:"requiredAmount"`
	CustomAmount   *decimal.Decimal `json:"customAmount,omitempty"`
	FlexState      string           `json:"flexState"`
}

func toPlanPayload(p core.MonthlyPlan) planPayload {
	return planPayload{
		ID:             p.ID,
		GoalID:         p.GoalID,
		Month:          p.Month,
		RequiredAmount: p.RequiredAmount,
		CustomAmount:   p.CustomAmount,
		FlexState:      string(p.FlexState),
	}
}

func (s *Server) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	plans, err := s.plans.GetOrCreatePlans(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type entry struct {
		Plan            planPayload     `json:"plan"`
		GoalName        string          `json:"goalName"`
		RequiredMonthly decimal.Decimal `json:"requiredMonthly"`
		FundingStatus   string          `json:"fundingStatus"`
	}
	out := make([]entry, 0, len(plans))
	for _, gp := range plans {
		out = append(out, entry{
			Plan:            toPlanPayload(gp.Plan),
			GoalName:        gp.Goal.Name,
			RequiredMonthly: gp.Requirement.Monthly,
			FundingStatus:   string(gp.Requirement.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	if err := s.plans.RecomputeMonth(r.Context(), month); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRollForward(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	if err := s.plans.RollForward(r.Context(), month); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlexAdjustment(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Multiplier decimal.Decimal `json:"multiplier"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	adj, err := s.flex.ApplyAdjustment(r.Context(), month, body.Multiplier)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type entry struct {
		Plan            planPayload     `json:"plan"`
		EffectiveAmount decimal.Decimal `json:"effectiveAmount"`
	}
	out := struct {
		Month      core.Month      `json:"month"`
		Multiplier decimal.Decimal `json:"multiplier"`
		Total      decimal.Decimal `json:"total"`
		Plans      []entry         `json:"plans"`
	}{Month: adj.Month, Multiplier: adj.Multiplier, Total: adj.Total}
	for _, p := range adj.Plans {
		out.Plans = append(out.Plans, entry{
			Plan:            toPlanPayload(p),
			EffectiveAmount: p.EffectiveAmount(adj.Multiplier),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetCustomAmount(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	plan, err := s.flex.SetCustomAmount(r.Context(), r.PathValue("goalID"), month, body.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanPayload(plan))
}

func (s *Server) handleClearCustomAmount(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	plan, err := s.flex.ClearCustomAmount(r.Context(), r.PathValue("goalID"), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanPayload(plan))
}

func (s *Server) handleSetFlexState(w http.ResponseWriter, r *http.Request) {
	month, ok := monthParam(w, r)
	if !ok {
		return
	}
	var body struct {
		State string `json:"state"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	plan, err := s.flex.SetFlexState(r.Context(), r.PathValue("goalID"), month, core.FlexState(body.State))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanPayload(plan))
}
