package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

var (
	flexMinMultiplier = decimal.Zero
	flexMaxMultiplier = decimal.NewFromInt(2)
)

// FlexEngine applies month-wide multipliers to plans and manages per-goal
// flex states and custom overrides.
type FlexEngine struct {
	store storage.Store
	now   Clock
}

func NewFlexEngine(store storage.Store, now Clock) *FlexEngine {
	if now == nil {
		now = time.Now
	}
	return &FlexEngine{store: store, now: now}
}

// FlexAdjustment is the outcome of applying a multiplier to one month.
type FlexAdjustment struct {
	Month      core.Month
	Multiplier decimal.Decimal
	Plans      []core.MonthlyPlan
	Total      decimal.Decimal
}

// ApplyAdjustment scales the month's flexible plans by a multiplier in
// [0, 2]. Protected plans keep their required amount, skipped plans count
// zero, and custom amounts always win. Plans are not mutated; the adjusted
// amounts exist only in the returned view.
func (e *FlexEngine) ApplyAdjustment(ctx context.Context, month core.Month, multiplier decimal.Decimal) (FlexAdjustment, error) {
	if multiplier.LessThan(flexMinMultiplier) || multiplier.GreaterThan(flexMaxMultiplier) {
		return FlexAdjustment{}, core.ErrMultiplierOutOfRange
	}

	adj := FlexAdjustment{Month: month, Multiplier: multiplier, Total: decimal.Zero}
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		plans, err := tx.ListPlansByMonth(month)
		if err != nil {
			return err
		}
		adj.Plans = plans
		for _, p := range plans {
			adj.Total = adj.Total.Add(p.EffectiveAmount(multiplier))
		}
		return nil
	})
	if err != nil {
		return FlexAdjustment{}, err
	}
	return adj, nil
}

// SetCustomAmount overrides a plan's amount for its month. Setting a custom
// amount protects the plan and clears a skipped state, since an explicit
// amount is a statement of intent.
func (e *FlexEngine) SetCustomAmount(ctx context.Context, goalID string, month core.Month, amount decimal.Decimal) (core.MonthlyPlan, error) {
	if amount.IsNegative() {
		return core.MonthlyPlan{}, core.ErrNegativeAmount
	}

	var plan core.MonthlyPlan
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		plan, err = tx.GetPlan(goalID, month)
		if err != nil {
			return err
		}
		plan.CustomAmount = &amount
		plan.FlexState = core.Protected
		plan.UpdatedAt = e.now()
		return tx.UpsertPlan(plan)
	})
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	return plan, nil
}

// ClearCustomAmount removes a plan's override and returns it to flexible.
func (e *FlexEngine) ClearCustomAmount(ctx context.Context, goalID string, month core.Month) (core.MonthlyPlan, error) {
	var plan core.MonthlyPlan
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		plan, err = tx.GetPlan(goalID, month)
		if err != nil {
			return err
		}
		plan.CustomAmount = nil
		plan.FlexState = core.Flexible
		plan.UpdatedAt = e.now()
		return tx.UpsertPlan(plan)
	})
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	return plan, nil
}

// SetFlexState switches a plan between flexible, protected, and skipped.
// Skipping clears any custom amount so the plan truly contributes zero.
func (e *FlexEngine) SetFlexState(ctx context.Context, goalID string, month core.Month, state core.FlexState) (core.MonthlyPlan, error) {
	if !state.Valid() {
		return core.MonthlyPlan{}, core.ErrInvalidFlexState
	}

	var plan core.MonthlyPlan
	err := e.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		plan, err = tx.GetPlan(goalID, month)
		if err != nil {
			return err
		}
		plan.FlexState = state
		if state == core.Skipped {
			plan.CustomAmount = nil
		}
		plan.UpdatedAt = e.now()
		return tx.UpsertPlan(plan)
	})
	if err != nil {
		return core.MonthlyPlan{}, err
	}
	return plan, nil
}
