package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/events"
	"risparmio/internal/storage"
)

// AllocationLedger owns per-asset allocations to goals. Every write validates
// the conservation invariant (an asset's allocations never total more than
// its balance) inside the same transaction, and appends audit history for
// changes larger than core.Epsilon.
type AllocationLedger struct {
	store     storage.Store
	bus       events.Publisher
	recompute RecomputeTrigger
	now       Clock
}

func NewAllocationLedger(store storage.Store, bus events.Publisher, recompute RecomputeTrigger, now Clock) *AllocationLedger {
	if bus == nil {
		bus = events.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &AllocationLedger{store: store, bus: bus, recompute: recompute, now: now}
}

// SetAllocation dedicates amount of the asset's balance to the goal,
// replacing any previous allocation for the pair. Fails with
// ExceedsAvailableBalanceError when the asset's allocations would total more
// than its balance.
func (l *AllocationLedger) SetAllocation(ctx context.Context, assetID, goalID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return core.ErrNegativeAmount
	}

	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		asset, err := tx.GetAsset(assetID)
		if err != nil {
			return err
		}
		if _, err := tx.GetGoal(goalID); err != nil {
			return err
		}

		otherTotal, err := sumAllocationsExcluding(tx, assetID, goalID)
		if err != nil {
			return err
		}
		attempted := otherTotal.Add(amount)
		if attempted.GreaterThan(asset.CurrentAmount) {
			return &core.ExceedsAvailableBalanceError{
				AssetID:   assetID,
				Attempted: attempted,
				Available: asset.CurrentAmount,
			}
		}

		previous := decimal.Zero
		if existing, err := tx.GetAllocation(assetID, goalID); err == nil {
			previous = existing.Amount
		} else if !errors.Is(err, core.ErrNotFound) {
			return err
		}

		now := l.now()
		if err := tx.UpsertAllocation(core.Allocation{
			AssetID:   assetID,
			GoalID:    goalID,
			Amount:    amount,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		if amount.Sub(previous).Abs().GreaterThan(core.Epsilon) {
			return tx.AppendAllocationHistory(core.AllocationHistoryEntry{
				AssetID:   assetID,
				GoalID:    goalID,
				Amount:    amount,
				CreatedAt: now,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.notifyChanged(ctx, assetID, []string{goalID})
	return nil
}

// RemoveAllocation deletes the allocation for the pair, recording a
// zero-amount history entry when the removed amount was significant.
func (l *AllocationLedger) RemoveAllocation(ctx context.Context, assetID, goalID string) error {
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.GetAllocation(assetID, goalID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAllocation(assetID, goalID); err != nil {
			return err
		}
		if existing.Amount.GreaterThan(core.Epsilon) {
			return tx.AppendAllocationHistory(core.AllocationHistoryEntry{
				AssetID:   assetID,
				GoalID:    goalID,
				Amount:    decimal.Zero,
				CreatedAt: l.now(),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.notifyChanged(ctx, assetID, []string{goalID})
	return nil
}

// BulkUpdate atomically replaces the asset's full allocation set. All amounts
// are validated before anything is written; history entries are emitted only
// for goals whose amount actually changed, plus zero-amount removal entries
// for goals dropped from the new set.
func (l *AllocationLedger) BulkUpdate(ctx context.Context, assetID string, newAllocations map[string]decimal.Decimal) error {
	total := decimal.Zero
	for goalID, amount := range newAllocations {
		if amount.IsNegative() {
			return fmt.Errorf("goal %s: %w", goalID, core.ErrNegativeAmount)
		}
		total = total.Add(amount)
	}

	var affected []string
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		asset, err := tx.GetAsset(assetID)
		if err != nil {
			return err
		}
		if total.GreaterThan(asset.CurrentAmount) {
			return &core.ExceedsAvailableBalanceError{
				AssetID:   assetID,
				Attempted: total,
				Available: asset.CurrentAmount,
			}
		}
		for goalID := range newAllocations {
			if _, err := tx.GetGoal(goalID); err != nil {
				return err
			}
		}

		existing, err := tx.ListAllocationsByAsset(assetID)
		if err != nil {
			return err
		}
		prior := make(map[string]decimal.Decimal, len(existing))
		for _, a := range existing {
			prior[a.GoalID] = a.Amount
		}

		now := l.now()
		affected = affected[:0]

		for goalID, amount := range newAllocations {
			if err := tx.UpsertAllocation(core.Allocation{
				AssetID:   assetID,
				GoalID:    goalID,
				Amount:    amount,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
			if amount.Sub(prior[goalID]).Abs().GreaterThan(core.Epsilon) {
				affected = append(affected, goalID)
				if err := tx.AppendAllocationHistory(core.AllocationHistoryEntry{
					AssetID:   assetID,
					GoalID:    goalID,
					Amount:    amount,
					CreatedAt: now,
				}); err != nil {
					return err
				}
			}
		}

		for goalID, priorAmount := range prior {
			if _, kept := newAllocations[goalID]; kept {
				continue
			}
			if err := tx.DeleteAllocation(assetID, goalID); err != nil {
				return err
			}
			affected = append(affected, goalID)
			if priorAmount.GreaterThan(core.Epsilon) {
				if err := tx.AppendAllocationHistory(core.AllocationHistoryEntry{
					AssetID:   assetID,
					GoalID:    goalID,
					Amount:    decimal.Zero,
					CreatedAt: now,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.notifyChanged(ctx, assetID, affected)
	return nil
}

// History returns the most recent audit entries for an asset.
func (l *AllocationLedger) History(ctx context.Context, assetID string, limit int) ([]core.AllocationHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []core.AllocationHistoryEntry
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.ListAllocationHistory(assetID, limit)
		return err
	})
	return entries, err
}

// notifyChanged publishes the change event and kicks the async recompute.
// Both are best-effort: the mutation already committed, so failures are
// logged and never surfaced to the caller.
func (l *AllocationLedger) notifyChanged(ctx context.Context, assetID string, goalIDs []string) {
	if err := l.bus.PublishAllocationChanged(ctx, assetID, goalIDs); err != nil {
		slog.ErrorContext(ctx, "Failed to publish allocation change",
			"asset_id", assetID, "error", err)
	}
	if l.recompute != nil {
		l.recompute.TriggerRecompute(assetID, goalIDs)
	}
}

func sumAllocationsExcluding(tx storage.Tx, assetID, excludeGoalID string) (decimal.Decimal, error) {
	allocs, err := tx.ListAllocationsByAsset(assetID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	total := decimal.Zero
	for _, a := range allocs {
		if a.GoalID == excludeGoalID {
			continue
		}
		total = total.Add(a.Amount)
	}
	return total, nil
}
