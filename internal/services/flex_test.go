package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

func flexFixture(t *testing.T) (*FlexEngine, storage.Store, core.Month) {
	t.Helper()
	store := newTestStore()
	conv := newFakeConverter(nil)
	month := core.MonthOf(testNow)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	seedGoal(store, "goal-b", "Laptop", "EUR", "800", testNow.AddDate(0, 4, 0))

	plans := NewPlanService(store, nil, conv, fixedClock(testNow))
	if _, err := plans.GetOrCreatePlans(context.Background(), month); err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}
	return NewFlexEngine(store, fixedClock(testNow)), store, month
}

func TestFlexEngine_ApplyAdjustment(t *testing.T) {
	ctx := context.Background()

	t.Run("identity multiplier leaves required amounts", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		adj, err := engine.ApplyAdjustment(ctx, month, decimal.NewFromInt(1))
		if err != nil {
			t.Fatalf("ApplyAdjustment() error = %v", err)
		}
		for _, p := range adj.Plans {
			if !p.EffectiveAmount(adj.Multiplier).Equal(p.RequiredAmount) {
				t.Errorf("goal %s: effective %s != required %s",
					p.GoalID, p.EffectiveAmount(adj.Multiplier), p.RequiredAmount)
			}
		}
		// 300 + 200
		if !adj.Total.Equal(dec("500")) {
			t.Errorf("total = %s, want 500", adj.Total)
		}
	})

	t.Run("scales flexible, honors protected and skipped", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		if _, err := engine.SetFlexState(ctx, "goal-a", month, core.Protected); err != nil {
			t.Fatalf("SetFlexState() error = %v", err)
		}

		adj, err := engine.ApplyAdjustment(ctx, month, dec("0.5"))
		if err != nil {
			t.Fatalf("ApplyAdjustment() error = %v", err)
		}
		// protected 300 + flexible 200*0.5
		if !adj.Total.Equal(dec("400")) {
			t.Errorf("total = %s, want 400", adj.Total)
		}

		if _, err := engine.SetFlexState(ctx, "goal-b", month, core.Skipped); err != nil {
			t.Fatalf("SetFlexState() error = %v", err)
		}
		adj, err = engine.ApplyAdjustment(ctx, month, dec("0.5"))
		if err != nil {
			t.Fatalf("ApplyAdjustment() error = %v", err)
		}
		if !adj.Total.Equal(dec("300")) {
			t.Errorf("total with skip = %s, want 300", adj.Total)
		}
	})

	t.Run("custom amount wins over the multiplier", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		if _, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("120")); err != nil {
			t.Fatalf("SetCustomAmount() error = %v", err)
		}
		adj, err := engine.ApplyAdjustment(ctx, month, dec("2"))
		if err != nil {
			t.Fatalf("ApplyAdjustment() error = %v", err)
		}
		// custom 120 + flexible 200*2
		if !adj.Total.Equal(dec("520")) {
			t.Errorf("total = %s, want 520", adj.Total)
		}
	})

	t.Run("reapplying does not drift custom amounts", func(t *testing.T) {
		engine, store, month := flexFixture(t)
		if _, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("120")); err != nil {
			t.Fatalf("SetCustomAmount() error = %v", err)
		}
		for range 3 {
			if _, err := engine.ApplyAdjustment(ctx, month, dec("0.7")); err != nil {
				t.Fatalf("ApplyAdjustment() error = %v", err)
			}
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
		if plan.CustomAmount == nil || !plan.CustomAmount.Equal(dec("120")) {
			t.Errorf("custom amount drifted: %v", plan.CustomAmount)
		}
	})

	t.Run("multiplier bounds", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		for _, m := range []string{"-0.1", "2.01"} {
			if _, err := engine.ApplyAdjustment(ctx, month, dec(m)); !errors.Is(err, core.ErrMultiplierOutOfRange) {
				t.Errorf("multiplier %s: error = %v, want ErrMultiplierOutOfRange", m, err)
			}
		}
	})
}

func TestFlexEngine_SetCustomAmount(t *testing.T) {
	ctx := context.Background()

	t.Run("auto-protects and clears skipped", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		if _, err := engine.SetFlexState(ctx, "goal-a", month, core.Skipped); err != nil {
			t.Fatalf("SetFlexState() error = %v", err)
		}
		plan, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("75"))
		if err != nil {
			t.Fatalf("SetCustomAmount() error = %v", err)
		}
		if plan.FlexState != core.Protected {
			t.Errorf("flex state = %s, want protected", plan.FlexState)
		}
	})

	t.Run("rejects negative", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		if _, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("-5")); !errors.Is(err, core.ErrNegativeAmount) {
			t.Errorf("error = %v, want ErrNegativeAmount", err)
		}
	})

	t.Run("unknown plan", func(t *testing.T) {
		engine, _, month := flexFixture(t)
		if _, err := engine.SetCustomAmount(ctx, "nope", month, dec("5")); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestFlexEngine_SetFlexState(t *testing.T) {
	ctx := context.Background()
	engine, _, month := flexFixture(t)

	if _, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("75")); err != nil {
		t.Fatalf("SetCustomAmount() error = %v", err)
	}
	plan, err := engine.SetFlexState(ctx, "goal-a", month, core.Skipped)
	if err != nil {
		t.Fatalf("SetFlexState() error = %v", err)
	}
	if plan.CustomAmount != nil {
		t.Errorf("skipping kept the custom amount: %s", plan.CustomAmount)
	}
	if !plan.EffectiveAmount(decimal.NewFromInt(1)).IsZero() {
		t.Errorf("skipped plan contributes %s, want 0", plan.EffectiveAmount(decimal.NewFromInt(1)))
	}

	if _, err := engine.SetFlexState(ctx, "goal-a", month, "bogus"); !errors.Is(err, core.ErrInvalidFlexState) {
		t.Errorf("error = %v, want ErrInvalidFlexState", err)
	}
}

func TestFlexEngine_ClearCustomAmount(t *testing.T) {
	ctx := context.Background()
	engine, _, month := flexFixture(t)

	if _, err := engine.SetCustomAmount(ctx, "goal-a", month, dec("75")); err != nil {
		t.Fatalf("SetCustomAmount() error = %v", err)
	}
	plan, err := engine.ClearCustomAmount(ctx, "goal-a", month)
	if err != nil {
		t.Fatalf("ClearCustomAmount() error = %v", err)
	}
	if plan.CustomAmount != nil {
		t.Errorf("custom amount not cleared")
	}
	if plan.FlexState != core.Flexible {
		t.Errorf("flex state = %s, want flexible", plan.FlexState)
	}
}
