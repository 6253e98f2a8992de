package services

import (
	"context"
	"testing"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

func planFixture(t *testing.T) (*PlanService, *AllocationLedger, storage.Store) {
	t.Helper()
	store := newTestStore()
	conv := newFakeConverter(map[string]string{"USD/EUR": "0.9", "EUR/USD": "1.11"})
	plans := NewPlanService(store, nil, conv, fixedClock(testNow))
	ledger := NewAllocationLedger(store, nil, nil, fixedClock(testNow))
	return plans, ledger, store
}

func TestPlanService_GetOrCreatePlans(t *testing.T) {
	ctx := context.Background()
	plans, _, store := planFixture(t)

	// Deadline four whole months out, target 1200, nothing allocated.
	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	month := core.MonthOf(testNow)

	first, err := plans.GetOrCreatePlans(ctx, month)
	if err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("plans = %d, want 1", len(first))
	}
	if !first[0].Plan.RequiredAmount.Equal(dec("300")) {
		t.Errorf("required = %s, want 300", first[0].Plan.RequiredAmount)
	}
	if first[0].Plan.FlexState != core.Flexible {
		t.Errorf("flex state = %s, want flexible", first[0].Plan.FlexState)
	}

	// Idempotence: a second call returns the same plan identity.
	second, err := plans.GetOrCreatePlans(ctx, month)
	if err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	if second[0].Plan.ID != first[0].Plan.ID {
		t.Errorf("plan ID changed across calls: %s != %s", second[0].Plan.ID, first[0].Plan.ID)
	}
}

func TestPlanService_RecomputeMonth(t *testing.T) {
	ctx := context.Background()
	plans, ledger, store := planFixture(t)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	seedAsset(store, "asset-1", "Savings", "EUR", "1000")
	month := core.MonthOf(testNow)

	if _, err := plans.GetOrCreatePlans(ctx, month); err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	if err := ledger.SetAllocation(ctx, "asset-1", "goal-a", dec("400")); err != nil {
		t.Fatalf("SetAllocation() error = %v", err)
	}

	if err := plans.RecomputeMonth(ctx, month); err != nil {
		t.Fatalf("RecomputeMonth() error = %v", err)
	}

	var plan core.MonthlyPlan
	readPlan := func() core.MonthlyPlan {
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			plan, err = tx.GetPlan("goal-a", month)
			return err
		})
		if err != nil {
			t.Fatalf("GetPlan() error = %v", err)
		}
		return plan
	}

	// (1200 - 400) / 4 = 200
	if got := readPlan(); !got.RequiredAmount.Equal(dec("200")) {
		t.Errorf("required = %s, want 200", got.RequiredAmount)
	}

	// Idempotent: a repeated recompute converges on the same state.
	if err := plans.RecomputeMonth(ctx, month); err != nil {
		t.Fatalf("RecomputeMonth() error = %v", err)
	}
	if got := readPlan(); !got.RequiredAmount.Equal(dec("200")) {
		t.Errorf("required after rerun = %s, want 200", got.RequiredAmount)
	}
}

func TestPlanService_RecomputeConvertsAllocationCurrency(t *testing.T) {
	ctx := context.Background()
	plans, ledger, store := planFixture(t)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	seedAsset(store, "asset-usd", "Broker", "USD", "1000")
	month := core.MonthOf(testNow)

	if err := ledger.SetAllocation(ctx, "asset-usd", "goal-a", dec("400")); err != nil {
		t.Fatalf("SetAllocation() error = %v", err)
	}
	if err := plans.RecomputeMonth(ctx, month); err != nil {
		t.Fatalf("RecomputeMonth() error = %v", err)
	}

	var plan core.MonthlyPlan
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		plan, err = tx.GetPlan("goal-a", month)
		return err
	})
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	// 400 USD at 0.9 = 360 EUR allocated; (1200 - 360) / 4 = 210
	if !plan.RequiredAmount.Equal(dec("210")) {
		t.Errorf("required = %s, want 210", plan.RequiredAmount)
	}
}

func TestPlanService_RecomputePreservesOverrides(t *testing.T) {
	ctx := context.Background()
	plans, _, store := planFixture(t)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	month := core.MonthOf(testNow)

	if _, err := plans.GetOrCreatePlans(ctx, month); err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	flex := NewFlexEngine(store, fixedClock(testNow))
	if _, err := flex.SetCustomAmount(ctx, "goal-a", month, dec("150")); err != nil {
		t.Fatalf("SetCustomAmount() error = %v", err)
	}

	if err := plans.RecomputeMonth(ctx, month); err != nil {
		t.Fatalf("RecomputeMonth() error = %v", err)
	}

	var plan core.MonthlyPlan
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		plan, err = tx.GetPlan("goal-a", month)
		return err
	})
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if plan.CustomAmount == nil || !plan.CustomAmount.Equal(dec("150")) {
		t.Errorf("custom amount lost by recompute: %v", plan.CustomAmount)
	}
	if plan.FlexState != core.Protected {
		t.Errorf("flex state = %s, want protected", plan.FlexState)
	}
}

func TestPlanService_RollForward(t *testing.T) {
	ctx := context.Background()
	plans, _, store := planFixture(t)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 6, 0))
	month := core.MonthOf(testNow)

	if _, err := plans.GetOrCreatePlans(ctx, month); err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	flex := NewFlexEngine(store, fixedClock(testNow))
	if _, err := flex.SetCustomAmount(ctx, "goal-a", month, dec("99")); err != nil {
		t.Fatalf("SetCustomAmount() error = %v", err)
	}

	if err := plans.RollForward(ctx, month); err != nil {
		t.Fatalf("RollForward() error = %v", err)
	}

	var next core.MonthlyPlan
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		next, err = tx.GetPlan("goal-a", month.Next())
		return err
	})
	if err != nil {
		t.Fatalf("GetPlan(next) error = %v", err)
	}
	if next.FlexState != core.Protected {
		t.Errorf("flex state did not carry: %s", next.FlexState)
	}
	if next.CustomAmount != nil {
		t.Errorf("custom amount carried to next month: %s", next.CustomAmount)
	}

	// Rolling forward again does not clobber the existing plan.
	if err := plans.RollForward(ctx, month); err != nil {
		t.Fatalf("RollForward() rerun error = %v", err)
	}
	var again core.MonthlyPlan
	err = store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		again, err = tx.GetPlan("goal-a", month.Next())
		return err
	})
	if err != nil {
		t.Fatalf("GetPlan(next) error = %v", err)
	}
	if again.ID != next.ID {
		t.Errorf("roll forward rerun replaced the plan: %s != %s", again.ID, next.ID)
	}
}

func TestPlanService_CompletedGoalRequiresZero(t *testing.T) {
	ctx := context.Background()
	plans, ledger, store := planFixture(t)

	seedGoal(store, "goal-a", "Trip", "EUR", "500", testNow.AddDate(0, 4, 0))
	seedAsset(store, "asset-1", "Savings", "EUR", "1000")
	month := core.MonthOf(testNow)

	if err := ledger.SetAllocation(ctx, "asset-1", "goal-a", dec("500")); err != nil {
		t.Fatalf("SetAllocation() error = %v", err)
	}

	got, err := plans.GetOrCreatePlans(ctx, month)
	if err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("plans = %d, want 1", len(got))
	}
	if !got[0].Plan.RequiredAmount.IsZero() {
		t.Errorf("required = %s, want 0 for a fully funded goal", got[0].Plan.RequiredAmount)
	}
	if got[0].Requirement.Status != core.FundingCompleted {
		t.Errorf("status = %s, want completed", got[0].Requirement.Status)
	}
}

func TestMonthsRemainingFloor(t *testing.T) {
	// A deadline in the past still divides by one month, not zero.
	goal := core.Goal{
		ID:           "g",
		Currency:     "EUR",
		TargetAmount: dec("100"),
		Deadline:     testNow.AddDate(0, -1, 0),
		CreatedAt:    testNow.AddDate(0, -2, 0),
	}
	req := core.ComputeRequirement(goal, dec("0"), testNow)
	if !req.Monthly.Equal(dec("100")) {
		t.Errorf("required = %s, want 100", req.Monthly)
	}
}
