package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// movableClock lets tests jump time across undo windows.
type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type executionFixture struct {
	tracker *ExecutionTracker
	contrib *ContributionService
	flex    *FlexEngine
	store   storage.Store
	clock   *movableClock
	month   core.Month
}

func newExecutionFixture(t *testing.T) *executionFixture {
	t.Helper()
	store := newTestStore()
	clock := &movableClock{t: testNow}
	conv := newFakeConverter(map[string]string{"USD/EUR": "0.9", "EUR/USD": "1.11"})
	month := core.MonthOf(testNow)

	seedGoal(store, "goal-a", "Trip", "EUR", "1200", testNow.AddDate(0, 4, 0))
	seedGoal(store, "goal-b", "Laptop", "EUR", "800", testNow.AddDate(0, 4, 0))
	seedAsset(store, "asset-1", "Savings", "EUR", "5000")

	plans := NewPlanService(store, nil, conv, clock.Now)
	if _, err := plans.GetOrCreatePlans(context.Background(), month); err != nil {
		t.Fatalf("GetOrCreatePlans() error = %v", err)
	}

	tracker := NewExecutionTracker(store, nil, conv, DefaultUndoWindow, clock.Now)
	return &executionFixture{
		tracker: tracker,
		contrib: NewContributionService(store, tracker, clock.Now),
		flex:    NewFlexEngine(store, clock.Now),
		store:   store,
		clock:   clock,
		month:   month,
	}
}

func TestExecutionTracker_StartTracking(t *testing.T) {
	ctx := context.Background()

	t.Run("freezes a snapshot and starts executing", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		if record.Status != core.ExecutionExecuting {
			t.Errorf("status = %s, want executing", record.Status)
		}
		if !record.CanUndoUntil.Equal(testNow.Add(DefaultUndoWindow)) {
			t.Errorf("undo deadline = %s, want start + 24h", record.CanUndoUntil)
		}

		var snaps []core.ExecutionGoalSnapshot
		err = f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			snaps, err = tx.ListSnapshotGoals(record.ID)
			return err
		})
		if err != nil {
			t.Fatalf("ListSnapshotGoals() error = %v", err)
		}
		if len(snaps) != 2 {
			t.Fatalf("snapshot goals = %d, want 2", len(snaps))
		}
	})

	t.Run("double start fails", func(t *testing.T) {
		f := newExecutionFixture(t)
		if _, err := f.tracker.StartTracking(ctx, f.month); err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		if _, err := f.tracker.StartTracking(ctx, f.month); !errors.Is(err, core.ErrAlreadyTracking) {
			t.Errorf("second start error = %v, want ErrAlreadyTracking", err)
		}
	})
}

func TestExecutionTracker_UndoStartTracking(t *testing.T) {
	ctx := context.Background()

	t.Run("inside the window reverts to draft and allows restart", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}

		f.clock.Advance(23 * time.Hour)
		undone, err := f.tracker.UndoStartTracking(ctx, record.ID)
		if err != nil {
			t.Fatalf("UndoStartTracking() at T+23h error = %v", err)
		}
		if undone.Status != core.ExecutionDraft {
			t.Errorf("status = %s, want draft", undone.Status)
		}

		restarted, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("restart after undo error = %v", err)
		}
		if restarted.ID != record.ID {
			t.Errorf("restart created a new record: %s != %s", restarted.ID, record.ID)
		}
	})

	t.Run("past the window fails", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}

		f.clock.Advance(25 * time.Hour)
		if _, err := f.tracker.UndoStartTracking(ctx, record.ID); !errors.Is(err, core.ErrUndoExpired) {
			t.Errorf("undo at T+25h error = %v, want ErrUndoExpired", err)
		}
	})

	t.Run("wrong state fails", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		if _, err := f.tracker.MarkComplete(ctx, record.ID); err != nil {
			t.Fatalf("MarkComplete() error = %v", err)
		}

		var stateErr *core.StateError
		if _, err := f.tracker.UndoStartTracking(ctx, record.ID); !errors.As(err, &stateErr) {
			t.Errorf("undo start on closed record error = %v, want StateError", err)
		}
	})
}

func TestExecutionTracker_MarkComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("freezes fulfillment rows", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		if _, err := f.contrib.Record(ctx, core.Contribution{
			GoalID:       "goal-a",
			AssetID:      "asset-1",
			Amount:       dec("100"),
			Currency:     "EUR",
			ExchangeRate: dec("1"),
			RecordID:     &record.ID,
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		closed, err := f.tracker.MarkComplete(ctx, record.ID)
		if err != nil {
			t.Fatalf("MarkComplete() error = %v", err)
		}
		if closed.Status != core.ExecutionClosed {
			t.Errorf("status = %s, want closed", closed.Status)
		}
		if closed.CompletedAt == nil {
			t.Error("completedAt not set")
		}

		var rows []core.CompletedExecution
		err = f.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			rows, err = tx.ListCompletedExecutions(record.ID)
			return err
		})
		if err != nil {
			t.Fatalf("ListCompletedExecutions() error = %v", err)
		}
		if len(rows) != 2 {
			t.Fatalf("completed rows = %d, want 2", len(rows))
		}
		for _, row := range rows {
			if row.GoalID == "goal-a" && !row.ContributedAmount.Equal(dec("100")) {
				t.Errorf("contributed = %s, want 100", row.ContributedAmount)
			}
		}
	})

	t.Run("only from executing", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		if _, err := f.tracker.MarkComplete(ctx, record.ID); err != nil {
			t.Fatalf("MarkComplete() error = %v", err)
		}
		var stateErr *core.StateError
		if _, err := f.tracker.MarkComplete(ctx, record.ID); !errors.As(err, &stateErr) {
			t.Errorf("double complete error = %v, want StateError", err)
		}
	})
}

func TestExecutionTracker_UndoCompletion(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	record, err := f.tracker.StartTracking(ctx, f.month)
	if err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}
	if _, err := f.tracker.MarkComplete(ctx, record.ID); err != nil {
		t.Fatalf("MarkComplete() error = %v", err)
	}

	reopened, err := f.tracker.UndoCompletion(ctx, record.ID)
	if err != nil {
		t.Fatalf("UndoCompletion() error = %v", err)
	}
	if reopened.Status != core.ExecutionExecuting {
		t.Errorf("status = %s, want executing", reopened.Status)
	}
	if reopened.CompletedAt != nil {
		t.Error("completedAt survived the undo")
	}

	var rows []core.CompletedExecution
	err = f.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		rows, err = tx.ListCompletedExecutions(record.ID)
		return err
	})
	if err != nil {
		t.Fatalf("ListCompletedExecutions() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("completed rows = %d, want 0 after undo", len(rows))
	}
}

func TestExecutionTracker_Overview(t *testing.T) {
	ctx := context.Background()

	t.Run("executing months show live plan edits", func(t *testing.T) {
		f := newExecutionFixture(t)
		if _, err := f.tracker.StartTracking(ctx, f.month); err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}

		// Mid-month edit: the executing view must pick it up immediately.
		if _, err := f.flex.SetCustomAmount(ctx, "goal-a", f.month, dec("555")); err != nil {
			t.Fatalf("SetCustomAmount() error = %v", err)
		}

		view, err := f.tracker.Overview(ctx, f.month, "EUR")
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if view.Status != core.ExecutionExecuting {
			t.Fatalf("status = %s, want executing", view.Status)
		}
		if got := rowFor(t, view, "goal-a").PlannedAmount; !got.Equal(dec("555")) {
			t.Errorf("live planned = %s, want 555", got)
		}
	})

	t.Run("closed months stay frozen", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}

		before, err := f.tracker.Overview(ctx, f.month, "EUR")
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		frozen := rowFor(t, before, "goal-a").PlannedAmount

		if _, err := f.tracker.MarkComplete(ctx, record.ID); err != nil {
			t.Fatalf("MarkComplete() error = %v", err)
		}

		// Later edits must not leak into the closed view.
		if _, err := f.flex.SetCustomAmount(ctx, "goal-a", f.month, dec("9999")); err != nil {
			t.Fatalf("SetCustomAmount() error = %v", err)
		}

		after, err := f.tracker.Overview(ctx, f.month, "EUR")
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if after.Status != core.ExecutionClosed {
			t.Fatalf("status = %s, want closed", after.Status)
		}
		if got := rowFor(t, after, "goal-a").PlannedAmount; !got.Equal(frozen) {
			t.Errorf("frozen planned = %s, want %s", got, frozen)
		}
	})

	t.Run("conversion failure keeps native currency and flags the view", func(t *testing.T) {
		f := newExecutionFixture(t)
		if _, err := f.tracker.StartTracking(ctx, f.month); err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}

		view, err := f.tracker.Overview(ctx, f.month, "CHF")
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if !view.HasRateConversionWarning {
			t.Error("warning flag not set on conversion failure")
		}
		if got := rowFor(t, view, "goal-a").Currency; got != "EUR" {
			t.Errorf("row currency = %s, want native EUR", got)
		}
	})

	t.Run("remaining is planned minus contributed, floored at zero", func(t *testing.T) {
		f := newExecutionFixture(t)
		record, err := f.tracker.StartTracking(ctx, f.month)
		if err != nil {
			t.Fatalf("StartTracking() error = %v", err)
		}
		// Plan for goal-a is 300; contribute 320.
		if _, err := f.contrib.Record(ctx, core.Contribution{
			GoalID:       "goal-a",
			AssetID:      "asset-1",
			Amount:       dec("320"),
			Currency:     "EUR",
			ExchangeRate: dec("1"),
			RecordID:     &record.ID,
		}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		view, err := f.tracker.Overview(ctx, f.month, "EUR")
		if err != nil {
			t.Fatalf("Overview() error = %v", err)
		}
		if got := rowFor(t, view, "goal-a").Remaining; !got.IsZero() {
			t.Errorf("remaining = %s, want 0", got)
		}
	})
}

func TestExecutionTracker_GenerationToken(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	view, err := f.tracker.Overview(ctx, f.month, "EUR")
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}

	if _, err := f.tracker.StartTracking(ctx, f.month); err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}

	if view.Generation == f.tracker.Generation() {
		t.Error("mutation did not advance the generation; stale views are undetectable")
	}
}

func TestExecutionTracker_ContributionTotalsCache(t *testing.T) {
	ctx := context.Background()
	f := newExecutionFixture(t)

	record, err := f.tracker.StartTracking(ctx, f.month)
	if err != nil {
		t.Fatalf("StartTracking() error = %v", err)
	}

	totals, err := f.tracker.ContributionTotals(ctx, record.ID)
	if err != nil {
		t.Fatalf("ContributionTotals() error = %v", err)
	}
	if len(totals) != 0 {
		t.Fatalf("totals = %v, want empty", totals)
	}

	// Recording through the service invalidates the cached empty result.
	if _, err := f.contrib.Record(ctx, core.Contribution{
		GoalID:       "goal-a",
		AssetID:      "asset-1",
		Amount:       dec("50"),
		Currency:     "EUR",
		ExchangeRate: dec("1"),
		RecordID:     &record.ID,
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	totals, err = f.tracker.ContributionTotals(ctx, record.ID)
	if err != nil {
		t.Fatalf("ContributionTotals() error = %v", err)
	}
	if !totals["goal-a"].Equal(dec("50")) {
		t.Errorf("totals[goal-a] = %s, want 50", totals["goal-a"])
	}
}

func rowFor(t *testing.T, view MonthOverview, goalID string) OverviewRow {
	t.Helper()
	for _, row := range view.Rows {
		if row.GoalID == goalID {
			return row
		}
	}
	t.Fatalf("no overview row for %s", goalID)
	return OverviewRow{}
}
