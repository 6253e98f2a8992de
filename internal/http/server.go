// Package http exposes the engine as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"risparmio/internal/chain"
	"risparmio/internal/core"
	"risparmio/internal/middleware/trace"
	"risparmio/internal/services"
)

// Server bundles the engine services behind a JSON API.
type Server struct {
	http.Server

	goals   *services.GoalService
	assets  *services.AssetService
	ledger  *services.AllocationLedger
	plans   *services.PlanService
	flex    *services.FlexEngine
	budget  *services.BudgetCalculator
	tracker *services.ExecutionTracker
	contrib *services.ContributionService
	conv    services.Converter
}

// Deps is the full service wiring the server needs.
type Deps struct {
	Goals         *services.GoalService
	Assets        *services.AssetService
	Ledger        *services.AllocationLedger
	Plans         *services.PlanService
	Flex          *services.FlexEngine
	Budget        *services.BudgetCalculator
	Tracker       *services.ExecutionTracker
	Contributions *services.ContributionService
	Converter     services.Converter
}

func NewServer(addr string, deps Deps) *Server {
	s := &Server{
		goals:   deps.Goals,
		assets:  deps.Assets,
		ledger:  deps.Ledger,
		plans:   deps.Plans,
		flex:    deps.Flex,
		budget:  deps.Budget,
		tracker: deps.Tracker,
		contrib: deps.Contributions,
		conv:    deps.Converter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleHealth)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	mux.HandleFunc("PUT /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("GET /api/goals/{id}/status", s.handleGoalStatus)

	mux.HandleFunc("GET /api/assets", s.handleListAssets)
	mux.HandleFunc("POST /api/assets", s.handleCreateAsset)
	mux.HandleFunc("GET /api/assets/{id}", s.handleGetAsset)
	mux.HandleFunc("PUT /api/assets/{id}", s.handleUpdateAsset)
	mux.HandleFunc("DELETE /api/assets/{id}", s.handleDeleteAsset)
	mux.HandleFunc("POST /api/assets/{id}/refresh", s.handleRefreshAsset)

	mux.HandleFunc("PUT /api/assets/{id}/allocations/{goalID}", s.handleSetAllocation)
	mux.HandleFunc("DELETE /api/assets/{id}/allocations/{goalID}", s.handleRemoveAllocation)
	mux.HandleFunc("PUT /api/assets/{id}/allocations", s.handleBulkAllocations)
	mux.HandleFunc("GET /api/assets/{id}/history", s.handleAllocationHistory)

	mux.HandleFunc("GET /api/plans/{month}", s.handleGetPlans)
	mux.HandleFunc("POST /api/plans/{month}/recompute", s.handleRecompute)
	mux.HandleFunc("POST /api/plans/{month}/rollforward", s.handleRollForward)
	mux.HandleFunc("POST /api/plans/{month}/flex", s.handleFlexAdjustment)
	mux.HandleFunc("PUT /api/plans/{month}/goals/{goalID}/custom", s.handleSetCustomAmount)
	mux.HandleFunc("DELETE /api/plans/{month}/goals/{goalID}/custom", s.handleClearCustomAmount)
	mux.HandleFunc("PUT /api/plans/{month}/goals/{goalID}/state", s.handleSetFlexState)

	mux.HandleFunc("POST /api/budget/{month}/feasibility", s.handleFeasibility)
	mux.HandleFunc("POST /api/budget/{month}/schedule", s.handleGenerateSchedule)
	mux.HandleFunc("POST /api/budget/{month}/apply", s.handleApplySchedule)
	mux.HandleFunc("GET /api/budget/{month}/verify", s.handleVerifySchedule)

	mux.HandleFunc("POST /api/executions/{month}/start", s.handleStartTracking)
	mux.HandleFunc("GET /api/executions/{month}/overview", s.handleOverview)
	mux.HandleFunc("POST /api/executions/records/{id}/complete", s.handleMarkComplete)
	mux.HandleFunc("POST /api/executions/records/{id}/undo-start", s.handleUndoStart)
	mux.HandleFunc("POST /api/executions/records/{id}/undo-completion", s.handleUndoCompletion)
	mux.HandleFunc("GET /api/executions/records/{id}/contributions", s.handleListContributions)
	mux.HandleFunc("POST /api/contributions", s.handleRecordContribution)

	tracer := trace.NewMiddleware()
	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(tracer.Middleware(mux))

	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// writeError maps engine errors onto HTTP statuses: missing entities are 404,
// validation problems 400, state conflicts 409, and balance violations 422
// with both totals in the payload.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeds *core.ExceedsAvailableBalanceError
	var stateErr *core.StateError

	switch {
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &exceeds):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   exceeds.Error(),
			Details: map[string]string{"attempted": exceeds.Attempted.String(), "available": exceeds.Available.String()},
		})
	case errors.As(err, &stateErr),
		errors.Is(err, core.ErrAlreadyTracking),
		errors.Is(err, core.ErrUndoExpired),
		errors.Is(err, core.ErrStaleSchedule):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrEmptyCurrency),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrInvalidDeadline),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, core.ErrInvalidRate),
		errors.Is(err, core.ErrMissingGoal),
		errors.Is(err, core.ErrMissingAsset),
		errors.Is(err, core.ErrInvalidFlexState),
		errors.Is(err, core.ErrMultiplierOutOfRange),
		errors.Is(err, core.ErrInvalidMonth):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, chain.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"request_id", trace.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func monthParam(w http.ResponseWriter, r *http.Request) (core.Month, bool) {
	month, err := core.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return core.Month{}, false
	}
	return month, true
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
