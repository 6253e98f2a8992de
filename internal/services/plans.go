package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/events"
	"risparmio/internal/storage"
)

// PlanService maintains MonthlyPlans: lazy get-or-create per (goal, month),
// full recomputation of required amounts from the allocation ledger, and the
// month roll-forward.
type PlanService struct {
	store storage.Store
	bus   events.Publisher
	conv  Converter
	now   Clock
}

func NewPlanService(store storage.Store, bus events.Publisher, conv Converter, now Clock) *PlanService {
	if bus == nil {
		bus = events.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &PlanService{store: store, bus: bus, conv: conv, now: now}
}

// GoalPlan pairs a goal with its plan and the requirement it was computed
// from.
type GoalPlan struct {
	Goal        core.Goal
	Plan        core.MonthlyPlan
	Requirement core.Requirement
}

// GetOrCreatePlans returns the month's plan for every active goal, creating
// missing plans with a freshly computed required amount. Calling it twice
// yields the same plan identities.
func (s *PlanService) GetOrCreatePlans(ctx context.Context, month core.Month) ([]GoalPlan, error) {
	var out []GoalPlan
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		goals, err := tx.ListGoals(core.GoalActive)
		if err != nil {
			return err
		}

		out = out[:0]
		for _, goal := range goals {
			allocated := allocatedTotal(ctx, tx, s.conv, goal)
			req := core.ComputeRequirement(goal, allocated, s.now())

			plan, err := tx.GetPlan(goal.ID, month)
			if errors.Is(err, core.ErrNotFound) {
				plan = core.MonthlyPlan{
					ID:             uuid.NewString(),
					GoalID:         goal.ID,
					Month:          month,
					RequiredAmount: req.Monthly,
					FlexState:      core.Flexible,
					UpdatedAt:      s.now(),
				}
				if err := tx.UpsertPlan(plan); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			out = append(out, GoalPlan{Goal: goal, Plan: plan, Requirement: req})
		}
		return nil
	})
	return out, err
}

// RecomputeMonth recomputes every active goal's required amount for the
// month from current allocations. The recompute is full, not incremental, so
// repeated or out-of-order runs converge on the same state. Custom amounts
// and flex states are preserved.
func (s *PlanService) RecomputeMonth(ctx context.Context, month core.Month) error {
	var goalIDs []string
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		goals, err := tx.ListGoals(core.GoalActive)
		if err != nil {
			return err
		}

		goalIDs = goalIDs[:0]
		for _, goal := range goals {
			allocated := allocatedTotal(ctx, tx, s.conv, goal)
			req := core.ComputeRequirement(goal, allocated, s.now())

			plan, err := tx.GetPlan(goal.ID, month)
			if errors.Is(err, core.ErrNotFound) {
				plan = core.MonthlyPlan{
					ID:        uuid.NewString(),
					GoalID:    goal.ID,
					Month:     month,
					FlexState: core.Flexible,
				}
			} else if err != nil {
				return err
			}

			plan.RequiredAmount = req.Monthly
			plan.UpdatedAt = s.now()
			if err := tx.UpsertPlan(plan); err != nil {
				return err
			}
			goalIDs = append(goalIDs, goal.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.bus.PublishPlanRecalculated(ctx, goalIDs); err != nil {
		slog.ErrorContext(ctx, "Failed to publish plan recalculation", "error", err)
	}
	return nil
}

// RollForward creates next month's plans from the given month, carrying each
// goal's flex state. Custom amounts are month-specific and do not carry.
func (s *PlanService) RollForward(ctx context.Context, from core.Month) error {
	next := from.Next()
	return s.store.WithTx(ctx, func(tx storage.Tx) error {
		plans, err := tx.ListPlansByMonth(from)
		if err != nil {
			return err
		}
		for _, plan := range plans {
			if _, err := tx.GetPlan(plan.GoalID, next); err == nil {
				continue
			} else if !errors.Is(err, core.ErrNotFound) {
				return err
			}

			goal, err := tx.GetGoal(plan.GoalID)
			if err != nil {
				return err
			}
			if goal.Status != core.GoalActive {
				continue
			}

			allocated := allocatedTotal(ctx, tx, s.conv, goal)
			req := core.ComputeRequirement(goal, allocated, next.Time())
			if err := tx.UpsertPlan(core.MonthlyPlan{
				ID:             uuid.NewString(),
				GoalID:         goal.ID,
				Month:          next,
				RequiredAmount: req.Monthly,
				FlexState:      plan.FlexState,
				UpdatedAt:      s.now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// allocatedTotal sums a goal's allocations in the goal's currency. An
// allocation whose currency cannot be converted is left out of the total and
// logged; the next recompute picks it up once a rate is known.
func allocatedTotal(ctx context.Context, tx storage.Tx, conv Converter, goal core.Goal) decimal.Decimal {
	allocs, err := tx.ListAllocationsByGoal(goal.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list allocations for goal",
			"goal_id", goal.ID, "error", err)
		return decimal.Zero
	}

	total := decimal.Zero
	for _, a := range allocs {
		asset, err := tx.GetAsset(a.AssetID)
		if err != nil {
			slog.ErrorContext(ctx, "Allocation references missing asset",
				"asset_id", a.AssetID, "goal_id", goal.ID, "error", err)
			continue
		}
		converted, err := conv.Convert(ctx, a.Amount, asset.Currency, goal.Currency)
		if err != nil {
			slog.WarnContext(ctx, "Skipping unconvertible allocation in total",
				"asset_id", a.AssetID,
				"goal_id", goal.ID,
				"pair", asset.Currency+"/"+goal.Currency,
				"error", err)
			continue
		}
		total = total.Add(converted)
	}
	return total
}
