package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"risparmio/internal/cache"
	"risparmio/internal/core"
	"risparmio/internal/events"
	"risparmio/internal/storage"
)

// DefaultUndoWindow bounds how long a tracking transition can be reversed.
const DefaultUndoWindow = 24 * time.Hour

// ExecutionTracker drives the Draft, Executing, Closed state machine for a
// month's plan: it freezes a snapshot when tracking starts, accumulates
// contribution totals against the record, and closes the month with a frozen
// fulfillment row per goal. Both transitions can be undone inside the undo
// window.
type ExecutionTracker struct {
	store      storage.Store
	bus        events.Publisher
	conv       Converter
	totals     cache.Cache[map[string]decimal.Decimal]
	now        Clock
	undoWindow time.Duration
	generation atomic.Uint64
}

func NewExecutionTracker(store storage.Store, bus events.Publisher, conv Converter, undoWindow time.Duration, now Clock) *ExecutionTracker {
	if bus == nil {
		bus = events.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	if undoWindow <= 0 {
		undoWindow = DefaultUndoWindow
	}
	return &ExecutionTracker{
		store:      store,
		bus:        bus,
		conv:       conv,
		totals:     cache.NewLRUCache[map[string]decimal.Decimal](128, 5*time.Minute),
		now:        now,
		undoWindow: undoWindow,
	}
}

// StartTracking freezes the month's current plans into an immutable snapshot
// and moves the record to Executing. A month already Executing or Closed
// cannot be started again; a Draft left behind by an undo is reused.
func (t *ExecutionTracker) StartTracking(ctx context.Context, month core.Month) (core.ExecutionRecord, error) {
	var record core.ExecutionRecord
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		fresh := false
		existing, err := tx.GetExecutionByMonth(month)
		switch {
		case err == nil:
			if existing.Status != core.ExecutionDraft {
				return core.ErrAlreadyTracking
			}
			record = existing
		case errors.Is(err, core.ErrNotFound):
			record = core.ExecutionRecord{ID: uuid.NewString(), Month: month}
			fresh = true
		default:
			return err
		}

		plans, err := tx.ListPlansByMonth(month)
		if err != nil {
			return err
		}

		snaps := make([]core.ExecutionGoalSnapshot, 0, len(plans))
		for _, plan := range plans {
			goal, err := tx.GetGoal(plan.GoalID)
			if err != nil {
				return err
			}
			if goal.Status != core.GoalActive {
				continue
			}
			snaps = append(snaps, core.ExecutionGoalSnapshot{
				RecordID:      record.ID,
				GoalID:        goal.ID,
				GoalName:      goal.Name,
				PlannedAmount: plan.EffectiveAmount(decimal.NewFromInt(1)),
				Currency:      goal.Currency,
				FlexState:     plan.FlexState,
			})
		}

		now := t.now()
		record.Status = core.ExecutionExecuting
		record.StartedAt = now
		record.CompletedAt = nil
		record.CanUndoUntil = now.Add(t.undoWindow)

		if fresh {
			if err := tx.InsertExecution(record); err != nil {
				return err
			}
		} else if err := tx.UpdateExecution(record); err != nil {
			return err
		}
		return tx.ReplaceSnapshotGoals(record.ID, snaps)
	})
	if err != nil {
		return core.ExecutionRecord{}, err
	}

	t.bump(ctx, record)
	return record, nil
}

// MarkComplete closes an Executing record: per-goal fulfillment is frozen
// from the snapshot and the contribution totals at this instant, independent
// of later edits.
func (t *ExecutionTracker) MarkComplete(ctx context.Context, recordID string) (core.ExecutionRecord, error) {
	var record core.ExecutionRecord
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetExecution(recordID)
		if err != nil {
			return err
		}
		if record.Status != core.ExecutionExecuting {
			return &core.StateError{Op: "complete", Status: record.Status}
		}

		snaps, err := tx.ListSnapshotGoals(recordID)
		if err != nil {
			return err
		}
		contributed, err := tx.SumContributionsByRecord(recordID)
		if err != nil {
			return err
		}

		now := t.now()
		rows := make([]core.CompletedExecution, 0, len(snaps))
		for _, snap := range snaps {
			rows = append(rows, core.CompletedExecution{
				RecordID:          recordID,
				GoalID:            snap.GoalID,
				PlannedAmount:     snap.PlannedAmount,
				ContributedAmount: contributed[snap.GoalID],
				Currency:          snap.Currency,
				CompletedAt:       now,
			})
		}
		if err := tx.InsertCompletedExecutions(rows); err != nil {
			return err
		}

		record.Status = core.ExecutionClosed
		record.CompletedAt = &now
		record.CanUndoUntil = now.Add(t.undoWindow)
		return tx.UpdateExecution(record)
	})
	if err != nil {
		return core.ExecutionRecord{}, err
	}

	t.bump(ctx, record)
	return record, nil
}

// UndoStartTracking reverts an Executing record to Draft. Monthly plans are
// untouched, so live recomputation simply resumes. Fails past the undo
// deadline.
func (t *ExecutionTracker) UndoStartTracking(ctx context.Context, recordID string) (core.ExecutionRecord, error) {
	var record core.ExecutionRecord
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetExecution(recordID)
		if err != nil {
			return err
		}
		if record.Status != core.ExecutionExecuting {
			return &core.StateError{Op: "undo start", Status: record.Status}
		}
		if !t.now().Before(record.CanUndoUntil) {
			return core.ErrUndoExpired
		}

		record.Status = core.ExecutionDraft
		return tx.UpdateExecution(record)
	})
	if err != nil {
		return core.ExecutionRecord{}, err
	}

	t.bump(ctx, record)
	return record, nil
}

// UndoCompletion reverts a Closed record to Executing and discards the
// frozen fulfillment rows written at completion. Fails past the undo
// deadline.
func (t *ExecutionTracker) UndoCompletion(ctx context.Context, recordID string) (core.ExecutionRecord, error) {
	var record core.ExecutionRecord
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetExecution(recordID)
		if err != nil {
			return err
		}
		if record.Status != core.ExecutionClosed {
			return &core.StateError{Op: "undo completion", Status: record.Status}
		}
		if !t.now().Before(record.CanUndoUntil) {
			return core.ErrUndoExpired
		}

		if err := tx.DeleteCompletedExecutions(recordID); err != nil {
			return err
		}
		record.Status = core.ExecutionExecuting
		record.CompletedAt = nil
		record.CanUndoUntil = record.StartedAt.Add(t.undoWindow)
		return tx.UpdateExecution(record)
	})
	if err != nil {
		return core.ExecutionRecord{}, err
	}

	t.bump(ctx, record)
	return record, nil
}

// ContributionTotals returns the per-goal sum of contributions linked to the
// record, in each goal's currency. Totals are cached until a contribution or
// allocation change invalidates them.
func (t *ExecutionTracker) ContributionTotals(ctx context.Context, recordID string) (map[string]decimal.Decimal, error) {
	if totals, ok := t.totals.Get(recordID); ok {
		return totals, nil
	}

	var totals map[string]decimal.Decimal
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		totals, err = tx.SumContributionsByRecord(recordID)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.totals.Set(recordID, totals)
	return totals, nil
}

// InvalidateTotals drops the cached contribution totals for a record and
// advances the view generation.
func (t *ExecutionTracker) InvalidateTotals(recordID string) {
	t.totals.Delete(recordID)
	t.generation.Add(1)
}

// Generation returns the current view generation. A view stamped with an
// older generation has been superseded by a mutation and should be discarded.
func (t *ExecutionTracker) Generation() uint64 {
	return t.generation.Load()
}

// OverviewRow is one goal's line in a month overview. Remaining is expressed
// in Currency, which is the requested display currency unless conversion
// failed, in which case the goal's native currency is kept and the aggregate
// warning flag is set.
type OverviewRow struct {
	GoalID        string          `json:"goalId"`
	GoalName      string          `json:"goalName"`
	PlannedAmount decimal.Decimal `json:"plannedAmount"`
	Contributed   decimal.Decimal `json:"contributed"`
	Remaining     decimal.Decimal `json:"remaining"`
	Currency      string          `json:"currency"`
	FlexState     core.FlexState  `json:"flexState"`
}

// MonthOverview aggregates a month's execution state for display.
type MonthOverview struct {
	Month                    core.Month           `json:"month"`
	Status                   core.ExecutionStatus `json:"status"`
	RecordID                 string               `json:"recordId,omitempty"`
	Rows                     []OverviewRow        `json:"rows"`
	HasRateConversionWarning bool                 `json:"hasRateConversionWarning"`
	Generation               uint64               `json:"-"`
}

// Overview builds the month's display aggregate. Closed months read every
// figure from the frozen rows written at completion. Executing months read
// planned amounts from the live plans so mid-month edits show immediately,
// falling back to the snapshot for goals whose plan has gone missing. A month
// never started reports Draft with the live plans and no contributions.
func (t *ExecutionTracker) Overview(ctx context.Context, month core.Month, displayCurrency string) (MonthOverview, error) {
	view := MonthOverview{Month: month, Status: core.ExecutionDraft, Generation: t.Generation()}

	var (
		record    core.ExecutionRecord
		hasRecord bool
		snaps     []core.ExecutionGoalSnapshot
		completed []core.CompletedExecution
		plans     []core.MonthlyPlan
		goals     map[string]core.Goal
	)
	err := t.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetExecutionByMonth(month)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		hasRecord = err == nil

		if hasRecord {
			if snaps, err = tx.ListSnapshotGoals(record.ID); err != nil {
				return err
			}
			if record.Status == core.ExecutionClosed {
				completed, err = tx.ListCompletedExecutions(record.ID)
				return err
			}
		}

		if plans, err = tx.ListPlansByMonth(month); err != nil {
			return err
		}
		goals = make(map[string]core.Goal, len(plans))
		for _, p := range plans {
			g, err := tx.GetGoal(p.GoalID)
			if err != nil {
				return err
			}
			goals[p.GoalID] = g
		}
		return nil
	})
	if err != nil {
		return MonthOverview{}, err
	}

	switch {
	case hasRecord && record.Status == core.ExecutionClosed:
		view.Status = core.ExecutionClosed
		view.RecordID = record.ID
		names := make(map[string]string, len(snaps))
		states := make(map[string]core.FlexState, len(snaps))
		for _, s := range snaps {
			names[s.GoalID] = s.GoalName
			states[s.GoalID] = s.FlexState
		}
		for _, row := range completed {
			view.Rows = append(view.Rows, OverviewRow{
				GoalID:        row.GoalID,
				GoalName:      names[row.GoalID],
				PlannedAmount: row.PlannedAmount,
				Contributed:   row.ContributedAmount,
				Currency:      row.Currency,
				FlexState:     states[row.GoalID],
			})
		}

	case hasRecord && record.Status == core.ExecutionExecuting:
		view.Status = core.ExecutionExecuting
		view.RecordID = record.ID
		contributed, err := t.ContributionTotals(ctx, record.ID)
		if err != nil {
			return MonthOverview{}, err
		}

		live := make(map[string]core.MonthlyPlan, len(plans))
		for _, p := range plans {
			live[p.GoalID] = p
		}
		one := decimal.NewFromInt(1)
		for _, snap := range snaps {
			row := OverviewRow{
				GoalID:        snap.GoalID,
				GoalName:      snap.GoalName,
				PlannedAmount: snap.PlannedAmount,
				Contributed:   contributed[snap.GoalID],
				Currency:      snap.Currency,
				FlexState:     snap.FlexState,
			}
			if plan, ok := live[snap.GoalID]; ok {
				row.PlannedAmount = plan.EffectiveAmount(one)
				row.FlexState = plan.FlexState
				if goal, ok := goals[snap.GoalID]; ok {
					row.GoalName = goal.Name
					row.Currency = goal.Currency
				}
			}
			view.Rows = append(view.Rows, row)
		}

	default:
		one := decimal.NewFromInt(1)
		for _, plan := range plans {
			goal := goals[plan.GoalID]
			view.Rows = append(view.Rows, OverviewRow{
				GoalID:        plan.GoalID,
				GoalName:      goal.Name,
				PlannedAmount: plan.EffectiveAmount(one),
				Currency:      goal.Currency,
				FlexState:     plan.FlexState,
			})
		}
	}

	sort.Slice(view.Rows, func(i, j int) bool { return view.Rows[i].GoalID < view.Rows[j].GoalID })

	t.convertRemaining(ctx, &view, displayCurrency)
	return view, nil
}

// convertRemaining fills each row's remaining-to-close in the display
// currency, converting rows concurrently. A failed conversion keeps the row
// in its native currency and flags the aggregate instead of failing the view.
func (t *ExecutionTracker) convertRemaining(ctx context.Context, view *MonthOverview, displayCurrency string) {
	var warned atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i := range view.Rows {
		row := &view.Rows[i]
		g.Go(func() error {
			remaining := decimal.Max(row.PlannedAmount.Sub(row.Contributed), decimal.Zero)
			converted, err := t.conv.Convert(gctx, remaining, row.Currency, displayCurrency)
			if err != nil {
				slog.WarnContext(gctx, "Rate unavailable for overview row, keeping native currency",
					"goal_id", row.GoalID,
					"pair", row.Currency+"/"+displayCurrency,
					"error", err)
				row.Remaining = remaining
				warned.Store(true)
				return nil
			}
			row.Remaining = converted
			row.Currency = displayCurrency
			return nil
		})
	}
	_ = g.Wait()
	view.HasRateConversionWarning = warned.Load()
}

// bump advances the view generation and announces the state change.
func (t *ExecutionTracker) bump(ctx context.Context, record core.ExecutionRecord) {
	t.generation.Add(1)
	t.totals.Delete(record.ID)
	if err := t.bus.PublishExecutionStateChanged(ctx, record.ID, string(record.Status)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish execution state change",
			"record_id", record.ID, "error", err)
	}
}
