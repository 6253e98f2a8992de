// Package services implements the goal-funding engine: the allocation
// ledger, plan recomputation, flex adjustment, budget scheduling, and
// execution tracking. Each mutating operation runs in one store transaction;
// invariants are checked inside that transaction, never against a stale read.
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Converter is the currency conversion port used for plan recomputation,
// budget feasibility, and display aggregation.
type Converter interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// RecomputeTrigger requests an asynchronous, best-effort plan recomputation.
// Implementations must never block the caller.
type RecomputeTrigger interface {
	TriggerRecompute(assetID string, goalIDs []string)
}

// Clock supplies the current time. Injected so transition windows and month
// arithmetic are deterministic in tests.
type Clock func() time.Time
