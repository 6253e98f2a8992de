package services

import (
	"context"
	"testing"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

func TestRecalculator_Lifecycle(t *testing.T) {
	store := newTestStore()
	plans := NewPlanService(store, nil, newFakeConverter(nil), fixedClock(testNow))
	rec := NewRecalculator(plans, RecalculatorConfig{Interval: time.Hour}, fixedClock(testNow))

	ctx := context.Background()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := rec.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}
	if !rec.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rec.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if rec.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestRecalculator_TriggerRecompute(t *testing.T) {
	store := newTestStore()
	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))

	plans := NewPlanService(store, nil, newFakeConverter(nil), fixedClock(testNow))
	rec := NewRecalculator(plans, RecalculatorConfig{Interval: time.Hour}, fixedClock(testNow))

	ctx := context.Background()
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rec.Stop(ctx)

	// Never blocks, even when fired repeatedly while one is pending.
	for range 10 {
		rec.TriggerRecompute("asset-1", []string{"goal-a"})
	}

	month := core.MonthOf(testNow)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var found bool
		err := store.WithTx(ctx, func(tx storage.Tx) error {
			_, err := tx.GetPlan("goal-a", month)
			found = err == nil
			return nil
		})
		if err != nil {
			t.Fatalf("WithTx() error = %v", err)
		}
		if found {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("triggered recompute never materialized a plan")
}
