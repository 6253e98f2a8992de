package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

const (
	Flexible  FlexState = "flexible"
	Protected FlexState = "protected"
	Skipped   FlexState = "skipped"
)

const (
	ExecutionDraft     ExecutionStatus = "draft"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionClosed    ExecutionStatus = "closed"
)

// Epsilon is the smallest allocation change worth recording. Changes at or
// below this threshold produce no audit history.
var Epsilon = decimal.New(1, -7)

type (
	GoalStatus      string
	FlexState       string
	ExecutionStatus string

	// Goal is a savings target in a single currency with a deadline.
	Goal struct {
		ID           string
		Name         string
		Currency     string
		TargetAmount decimal.Decimal
		Deadline     time.Time
		Status       GoalStatus
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Asset is a pool of funds in one currency. CurrentAmount combines the
	// manual ledger with an externally supplied on-chain balance; the engine
	// only reads it.
	Asset struct {
		ID            string
		Name          string
		Currency      string
		CurrentAmount decimal.Decimal
		Chain         string
		Address       string
		Symbol        string
		UpdatedAt     time.Time
	}

	// Allocation dedicates part of one asset's balance to one goal, in the
	// asset's currency. For every asset the sum of its allocations never
	// exceeds CurrentAmount.
	Allocation struct {
		AssetID   string
		GoalID    string
		Amount    decimal.Decimal
		UpdatedAt time.Time
	}

	// AllocationHistoryEntry is an immutable audit record of one allocation
	// change. A zero amount records a removal.
	AllocationHistoryEntry struct {
		ID        int64
		AssetID   string
		GoalID    string
		Amount    decimal.Decimal
		CreatedAt time.Time
	}

	// MonthlyPlan is the contribution plan for one goal in one month.
	MonthlyPlan struct {
		ID             string
		GoalID         string
		Month          Month
		RequiredAmount decimal.Decimal
		CustomAmount   *decimal.Decimal
		FlexState      FlexState
		UpdatedAt      time.Time
	}

	// ExecutionRecord is the frozen commitment for one month once tracking
	// starts. Records are history and are never deleted.
	ExecutionRecord struct {
		ID           string
		Month        Month
		Status       ExecutionStatus
		StartedAt    time.Time
		CompletedAt  *time.Time
		CanUndoUntil time.Time
	}

	// ExecutionGoalSnapshot is the per-goal state captured when tracking
	// starts. Never mutated after creation.
	ExecutionGoalSnapshot struct {
		RecordID      string
		GoalID        string
		GoalName      string
		PlannedAmount decimal.Decimal
		Currency      string
		FlexState     FlexState
	}

	// CompletedExecution is the per-goal fulfillment frozen at the instant a
	// month is closed, independent of later edits.
	CompletedExecution struct {
		RecordID          string
		GoalID            string
		PlannedAmount     decimal.Decimal
		ContributedAmount decimal.Decimal
		Currency          string
		CompletedAt       time.Time
	}

	// Contribution is a deposit or reallocation event toward a goal,
	// optionally linked to an execution record.
	Contribution struct {
		ID           string
		GoalID       string
		AssetID      string
		Amount       decimal.Decimal
		Currency     string
		ExchangeRate decimal.Decimal
		RecordID     *string
		CreatedAt    time.Time
	}
)

// EffectiveAmount resolves the amount a plan asks for under a global
// multiplier: skipped plans contribute nothing, a custom amount always wins,
// protected plans fall back to the required amount, and flexible plans scale
// the required amount by the multiplier.
func (p MonthlyPlan) EffectiveAmount(multiplier decimal.Decimal) decimal.Decimal {
	if p.FlexState == Skipped {
		return decimal.Zero
	}
	if p.CustomAmount != nil {
		return *p.CustomAmount
	}
	if p.FlexState == Protected {
		return p.RequiredAmount
	}
	return p.RequiredAmount.Mul(multiplier)
}

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalPaused, GoalCompleted, GoalCancelled:
		return true
	}
	return false
}

func (s FlexState) Valid() bool {
	switch s {
	case Flexible, Protected, Skipped:
		return true
	}
	return false
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if len(g.Name) > 120 {
		return ErrNameTooLong
	}
	if strings.TrimSpace(g.Currency) == "" {
		return ErrEmptyCurrency
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if g.Deadline.IsZero() {
		return ErrInvalidDeadline
	}
	if !g.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (a Asset) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(a.Currency) == "" {
		return ErrEmptyCurrency
	}
	if a.CurrentAmount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (c Contribution) Validate() error {
	if c.GoalID == "" {
		return ErrMissingGoal
	}
	if c.AssetID == "" {
		return ErrMissingAsset
	}
	if !c.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(c.Currency) == "" {
		return ErrEmptyCurrency
	}
	if !c.ExchangeRate.IsPositive() {
		return ErrInvalidRate
	}
	return nil
}
