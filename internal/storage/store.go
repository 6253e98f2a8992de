// Package storage defines the persistence ports of the goal-funding engine
// and its SQLite implementation. Every mutating engine operation runs inside
// a single transaction so invariant checks never work from a stale read.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

// Store opens transactions against the shared store. Both the SQLite
// repository and the in-memory store implement it.
type Store interface {
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls
	// the transaction back and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the set of queries available inside a transaction. Deleting a goal
// or asset cascades to its allocations, plans, and contributions.
type Tx interface {
	// Goals
	CreateGoal(g core.Goal) error
	UpdateGoal(g core.Goal) error
	GetGoal(id string) (core.Goal, error)
	ListGoals(statuses ...core.GoalStatus) ([]core.Goal, error)
	DeleteGoal(id string) error

	// Assets
	CreateAsset(a core.Asset) error
	UpdateAsset(a core.Asset) error
	GetAsset(id string) (core.Asset, error)
	ListAssets() ([]core.Asset, error)
	DeleteAsset(id string) error

	// Allocations
	GetAllocation(assetID, goalID string) (core.Allocation, error)
	ListAllocationsByAsset(assetID string) ([]core.Allocation, error)
	ListAllocationsByGoal(goalID string) ([]core.Allocation, error)
	UpsertAllocation(a core.Allocation) error
	DeleteAllocation(assetID, goalID string) error
	AppendAllocationHistory(e core.AllocationHistoryEntry) error
	ListAllocationHistory(assetID string, limit int) ([]core.AllocationHistoryEntry, error)

	// Monthly plans
	GetPlan(goalID string, month core.Month) (core.MonthlyPlan, error)
	ListPlansByMonth(month core.Month) ([]core.MonthlyPlan, error)
	UpsertPlan(p core.MonthlyPlan) error

	// Execution records
	GetExecutionByMonth(month core.Month) (core.ExecutionRecord, error)
	GetExecution(id string) (core.ExecutionRecord, error)
	InsertExecution(r core.ExecutionRecord) error
	UpdateExecution(r core.ExecutionRecord) error
	ReplaceSnapshotGoals(recordID string, snaps []core.ExecutionGoalSnapshot) error
	ListSnapshotGoals(recordID string) ([]core.ExecutionGoalSnapshot, error)
	InsertCompletedExecutions(rows []core.CompletedExecution) error
	DeleteCompletedExecutions(recordID string) error
	ListCompletedExecutions(recordID string) ([]core.CompletedExecution, error)

	// Contributions
	InsertContribution(c core.Contribution) error
	ListContributionsByRecord(recordID string) ([]core.Contribution, error)
	// SumContributionsByRecord returns, per goal, the sum of amount times
	// exchange rate for contributions linked to the record (goal currency).
	SumContributionsByRecord(recordID string) (map[string]decimal.Decimal, error)

	// Budget schedule applications
	GetBudgetApplication(month core.Month) (BudgetApplication, error)
	UpsertBudgetApplication(a BudgetApplication) error
}

// BudgetApplication records that a generated budget schedule was written to a
// month's plans, with a signature over the inputs so staleness is detectable.
type BudgetApplication struct {
	Month        core.Month
	Signature    string
	BudgetAmount decimal.Decimal
	Currency     string
	AppliedAt    time.Time
}
