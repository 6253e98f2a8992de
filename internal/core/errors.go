package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = errors.New("name too long (max 120 characters)")
	ErrEmptyCurrency   = errors.New("empty currency")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInvalidDeadline = errors.New("invalid deadline")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidRate     = errors.New("invalid exchange rate")
	ErrMissingGoal     = errors.New("missing goal id")
	ErrMissingAsset    = errors.New("missing asset id")

	ErrInvalidFlexState     = errors.New("invalid flex state")
	ErrMultiplierOutOfRange = errors.New("multiplier must be between 0 and 2")

	// ErrNotFound is wrapped by storage lookups for missing goals, assets,
	// plans, and execution records.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTracking is returned when tracking is started for a month
	// that already has an executing or closed record.
	ErrAlreadyTracking = errors.New("tracking already started for month")

	// ErrUndoExpired is returned when an undo is attempted at or after the
	// record's undo deadline.
	ErrUndoExpired = errors.New("undo window expired")

	// ErrStaleSchedule is returned when a previously applied budget schedule
	// no longer matches the current goal set, amounts, or deadlines.
	ErrStaleSchedule = errors.New("applied schedule is stale, recalculate before reuse")
)

// ExceedsAvailableBalanceError reports an allocation write that would claim
// more of an asset than it holds. Attempted is the total the write would have
// produced across all of the asset's allocations.
type ExceedsAvailableBalanceError struct {
	AssetID   string
	Attempted decimal.Decimal
	Available decimal.Decimal
}

func (e *ExceedsAvailableBalanceError) Error() string {
	return fmt.Sprintf("allocations for asset %s would total %s, exceeding available balance %s",
		e.AssetID, e.Attempted.String(), e.Available.String())
}

// StateError reports an execution transition attempted from the wrong state.
type StateError struct {
	Op     string
	Status ExecutionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s from status %q", e.Op, e.Status)
}
