package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	FundingOnTrack   FundingStatus = "on_track"
	FundingAttention FundingStatus = "attention"
	FundingCritical  FundingStatus = "critical"
	FundingCompleted FundingStatus = "completed"
)

// FundingStatus classifies how a goal is doing against its deadline.
type FundingStatus string

// Requirement is the monthly contribution a goal needs given what is already
// allocated to it.
type Requirement struct {
	Monthly         decimal.Decimal
	MonthsRemaining int
	Progress        decimal.Decimal
	Status          FundingStatus
}

// Status thresholds. A goal is critical when the deadline is near and it is
// well short of target, and needs attention when it is behind the linear pace
// from creation to deadline.
var (
	criticalDays     = 30
	criticalProgress = decimal.NewFromFloat(0.9)
)

// ComputeRequirement derives the required monthly contribution for a goal:
// the outstanding amount spread evenly over the whole months left before the
// deadline, never less than one month. A fully funded goal requires nothing.
func ComputeRequirement(goal Goal, allocated decimal.Decimal, now time.Time) Requirement {
	months := MonthsBetween(now, goal.Deadline)

	req := Requirement{
		MonthsRemaining: months,
		Progress:        progressRatio(goal.TargetAmount, allocated),
	}

	outstanding := goal.TargetAmount.Sub(allocated)
	if !outstanding.IsPositive() {
		req.Monthly = decimal.Zero
		req.Status = FundingCompleted
		req.Progress = decimal.NewFromInt(1)
		return req
	}

	divisor := months
	if divisor < 1 {
		divisor = 1
	}
	req.Monthly = outstanding.DivRound(decimal.NewFromInt(int64(divisor)), 8)
	req.Status = fundingStatus(goal, req.Progress, now)
	return req
}

func progressRatio(target, allocated decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	if allocated.IsNegative() {
		return decimal.Zero
	}
	ratio := allocated.DivRound(target, 8)
	one := decimal.NewFromInt(1)
	if ratio.GreaterThan(one) {
		return one
	}
	return ratio
}

func fundingStatus(goal Goal, progress decimal.Decimal, now time.Time) FundingStatus {
	daysRemaining := int(goal.Deadline.Sub(now).Hours() / 24)
	if daysRemaining < criticalDays && progress.LessThan(criticalProgress) {
		return FundingCritical
	}

	// Behind the straight line from creation to deadline.
	total := goal.Deadline.Sub(goal.CreatedAt)
	if total > 0 {
		elapsed := now.Sub(goal.CreatedAt)
		if elapsed > 0 {
			expected := decimal.NewFromFloat(elapsed.Seconds() / total.Seconds())
			if progress.LessThan(expected) {
				return FundingAttention
			}
		}
	}
	return FundingOnTrack
}
