package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// scheduleHorizonMonths caps forward projection of a budget schedule.
const scheduleHorizonMonths = 36

// SuggestionKind classifies a feasibility suggestion.
type SuggestionKind string

const (
	SuggestIncreaseBudget SuggestionKind = "increase_budget"
	SuggestExtendDeadline SuggestionKind = "extend_deadline"
	SuggestReduceTarget   SuggestionKind = "reduce_target"
)

// Suggestion is one way to make an infeasible budget feasible. Amount is the
// budget delta for increase_budget, Months the extension for extend_deadline,
// and From/To the target change (in the goal's currency) for reduce_target.
type Suggestion struct {
	Kind   SuggestionKind  `json:"kind"`
	GoalID string          `json:"goalId,omitempty"`
	Amount decimal.Decimal `json:"amount,omitempty"`
	Months int             `json:"months,omitempty"`
	From   decimal.Decimal `json:"from,omitempty"`
	To     decimal.Decimal `json:"to,omitempty"`
}

// FeasibilityResult reports whether one monthly budget covers every goal's
// required contribution, with ranked suggestions when it does not.
type FeasibilityResult struct {
	Feasible      bool            `json:"feasible"`
	Budget        decimal.Decimal `json:"budget"`
	Currency      string          `json:"currency"`
	TotalRequired decimal.Decimal `json:"totalRequired"`
	Suggestions   []Suggestion    `json:"suggestions,omitempty"`
}

// ScheduleEntry is one (goal, month, amount) block of a generated schedule,
// in the schedule's budget currency.
type ScheduleEntry struct {
	GoalID string          `json:"goalId"`
	Month  core.Month      `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Schedule is a multi-month per-goal contribution plan for a fixed budget.
// Complete is false when the projection hit the horizon before every goal
// reached its target.
type Schedule struct {
	Budget    decimal.Decimal `json:"budget"`
	Currency  string          `json:"currency"`
	Start     core.Month      `json:"start"`
	Entries   []ScheduleEntry `json:"entries"`
	Complete  bool            `json:"complete"`
	Signature string          `json:"signature"`
}

// BudgetCalculator turns one lump monthly budget into a feasibility verdict
// and a deterministic multi-month schedule, and records applied schedules so
// staleness is detectable.
type BudgetCalculator struct {
	store storage.Store
	conv  Converter
	now   Clock
}

func NewBudgetCalculator(store storage.Store, conv Converter, now Clock) *BudgetCalculator {
	if now == nil {
		now = time.Now
	}
	return &BudgetCalculator{store: store, conv: conv, now: now}
}

// budgetGoal is a goal's funding picture translated into the budget currency.
type budgetGoal struct {
	goal      core.Goal
	remaining decimal.Decimal // max(target-allocated, 0) in budget currency
	required  decimal.Decimal // required monthly in budget currency
	months    int             // whole months to deadline, min 1
}

// CheckFeasibility converts every unskipped active goal's required monthly
// contribution into the budget currency and compares the sum to the budget.
// When infeasible, suggestions are ranked: raise the budget by the shortfall,
// or extend the deadline or shrink the target of the latest-deadline goal
// until its requirement fits its proportional share of the budget.
func (c *BudgetCalculator) CheckFeasibility(ctx context.Context, month core.Month, budget decimal.Decimal, currency string) (FeasibilityResult, error) {
	if budget.IsNegative() {
		return FeasibilityResult{}, core.ErrNegativeAmount
	}

	goals, err := c.collectGoals(ctx, month, currency)
	if err != nil {
		return FeasibilityResult{}, err
	}

	total := decimal.Zero
	for _, g := range goals {
		total = total.Add(g.required)
	}

	res := FeasibilityResult{
		Feasible:      !total.GreaterThan(budget),
		Budget:        budget,
		Currency:      currency,
		TotalRequired: total,
	}
	if res.Feasible {
		return res, nil
	}

	res.Suggestions = append(res.Suggestions, Suggestion{
		Kind:   SuggestIncreaseBudget,
		Amount: total.Sub(budget),
	})

	// The latest-deadline goal has the most room to stretch or shrink.
	latest := goals[0]
	for _, g := range goals[1:] {
		if g.goal.Deadline.After(latest.goal.Deadline) {
			latest = g
		}
	}
	share := budget.Mul(latest.required).DivRound(total, 8)
	if share.IsPositive() && latest.remaining.IsPositive() {
		// Smallest extension that drops the monthly requirement to the share.
		needed := int(latest.remaining.DivRound(share, 8).Ceil().IntPart())
		if ext := needed - latest.months; ext > 0 {
			res.Suggestions = append(res.Suggestions, Suggestion{
				Kind:   SuggestExtendDeadline,
				GoalID: latest.goal.ID,
				Months: ext,
			})
		}

		// Smallest target cut with the same effect, back in the goal's currency.
		maxRemaining := share.Mul(decimal.NewFromInt(int64(latest.months)))
		if maxRemaining.LessThan(latest.remaining) {
			cut := latest.remaining.Sub(maxRemaining)
			cutNative, err := c.conv.Convert(ctx, cut, currency, latest.goal.Currency)
			if err == nil {
				res.Suggestions = append(res.Suggestions, Suggestion{
					Kind:   SuggestReduceTarget,
					GoalID: latest.goal.ID,
					From:   latest.goal.TargetAmount,
					To:     latest.goal.TargetAmount.Sub(cutNative),
				})
			}
		}
	}
	return res, nil
}

// GenerateSchedule projects a fixed monthly budget forward, earliest deadline
// first, until every goal reaches its target or the horizon is hit. Goals
// sharing a deadline are ordered by goal ID, so identical inputs always yield
// an identical schedule. Budget left over after every requirement is met goes
// pro rata to goals still short of target, capped at what each still needs.
func (c *BudgetCalculator) GenerateSchedule(ctx context.Context, start core.Month, budget decimal.Decimal, currency string) (Schedule, error) {
	if budget.IsNegative() {
		return Schedule{}, core.ErrNegativeAmount
	}

	goals, err := c.collectGoals(ctx, start, currency)
	if err != nil {
		return Schedule{}, err
	}

	sched := Schedule{Budget: budget, Currency: currency, Start: start}
	remaining := make([]decimal.Decimal, len(goals))
	for i, g := range goals {
		remaining[i] = g.remaining
	}

	month := start
	for step := 0; step < scheduleHorizonMonths; step++ {
		unfunded := false
		for i := range goals {
			if remaining[i].IsPositive() {
				unfunded = true
				break
			}
		}
		if !unfunded {
			sched.Complete = true
			break
		}

		left := budget
		grants := make([]decimal.Decimal, len(goals))
		for i, g := range goals {
			if !remaining[i].IsPositive() || !left.IsPositive() {
				continue
			}
			months := core.MonthsBetween(month.Time(), g.goal.Deadline)
			if months < 1 {
				months = 1
			}
			req := remaining[i].DivRound(decimal.NewFromInt(int64(months)), 8)
			grant := decimal.Min(req, left, remaining[i])
			grants[i] = grant
			left = left.Sub(grant)
		}

		if left.IsPositive() {
			shortfall := decimal.Zero
			for i := range goals {
				shortfall = shortfall.Add(remaining[i].Sub(grants[i]))
			}
			if shortfall.IsPositive() {
				for i := range goals {
					gap := remaining[i].Sub(grants[i])
					if !gap.IsPositive() {
						continue
					}
					extra := decimal.Min(left.Mul(gap).DivRound(shortfall, 8), gap)
					grants[i] = grants[i].Add(extra)
				}
			}
		}

		for i := range goals {
			if grants[i].IsPositive() {
				sched.Entries = append(sched.Entries, ScheduleEntry{
					GoalID: goals[i].goal.ID,
					Month:  month,
					Amount: grants[i],
				})
				remaining[i] = remaining[i].Sub(grants[i])
			}
		}
		month = month.Next()
	}

	if !sched.Complete {
		done := true
		for i := range goals {
			if remaining[i].IsPositive() {
				done = false
				break
			}
		}
		sched.Complete = done
	}
	sched.Signature = scheduleSignature(goals)
	return sched, nil
}

// ApplySchedule writes the schedule's first-month amounts as custom plan
// amounts (protecting those goals) and records the schedule signature so a
// later change to the goal set can be detected.
func (c *BudgetCalculator) ApplySchedule(ctx context.Context, sched Schedule) error {
	return c.store.WithTx(ctx, func(tx storage.Tx) error {
		for _, entry := range sched.Entries {
			if entry.Month != sched.Start {
				continue
			}
			plan, err := tx.GetPlan(entry.GoalID, sched.Start)
			if errors.Is(err, core.ErrNotFound) {
				plan = core.MonthlyPlan{
					ID:     uuid.NewString(),
					GoalID: entry.GoalID,
					Month:  sched.Start,
				}
			} else if err != nil {
				return err
			}
			goal, err := tx.GetGoal(entry.GoalID)
			if err != nil {
				return err
			}
			amount, err := c.conv.Convert(ctx, entry.Amount, sched.Currency, goal.Currency)
			if err != nil {
				return fmt.Errorf("convert scheduled amount for goal %s: %w", goal.ID, err)
			}
			plan.CustomAmount = &amount
			plan.FlexState = core.Protected
			plan.UpdatedAt = c.now()
			if err := tx.UpsertPlan(plan); err != nil {
				return err
			}
		}
		return tx.UpsertBudgetApplication(storage.BudgetApplication{
			Month:        sched.Start,
			Signature:    sched.Signature,
			BudgetAmount: sched.Budget,
			Currency:     sched.Currency,
			AppliedAt:    c.now(),
		})
	})
}

// VerifyApplied checks whether the schedule applied to a month still matches
// the current goals. ErrStaleSchedule means goals, targets, allocations, or
// deadlines have changed since the schedule was written.
func (c *BudgetCalculator) VerifyApplied(ctx context.Context, month core.Month) error {
	var applied storage.BudgetApplication
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		applied, err = tx.GetBudgetApplication(month)
		return err
	})
	if err != nil {
		return err
	}

	goals, err := c.collectGoals(ctx, month, applied.Currency)
	if err != nil {
		return err
	}
	if scheduleSignature(goals) != applied.Signature {
		return core.ErrStaleSchedule
	}
	return nil
}

// collectGoals loads the active goals participating in a month's budget,
// skipped plans excluded, with remaining and required amounts converted into
// the budget currency. Order is deadline ascending, goal ID breaking ties.
func (c *BudgetCalculator) collectGoals(ctx context.Context, month core.Month, currency string) ([]budgetGoal, error) {
	var out []budgetGoal
	err := c.store.WithTx(ctx, func(tx storage.Tx) error {
		goals, err := tx.ListGoals(core.GoalActive)
		if err != nil {
			return err
		}

		out = out[:0]
		for _, goal := range goals {
			plan, err := tx.GetPlan(goal.ID, month)
			if err == nil && plan.FlexState == core.Skipped {
				continue
			} else if err != nil && !errors.Is(err, core.ErrNotFound) {
				return err
			}

			allocated := allocatedTotal(ctx, tx, c.conv, goal)
			remainingNative := goal.TargetAmount.Sub(allocated)
			if !remainingNative.IsPositive() {
				continue
			}
			remaining, err := c.conv.Convert(ctx, remainingNative, goal.Currency, currency)
			if err != nil {
				return fmt.Errorf("convert goal %s into %s: %w", goal.ID, currency, err)
			}

			months := core.MonthsBetween(month.Time(), goal.Deadline)
			if months < 1 {
				months = 1
			}
			out = append(out, budgetGoal{
				goal:      goal,
				remaining: remaining,
				required:  remaining.DivRound(decimal.NewFromInt(int64(months)), 8),
				months:    months,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].goal.Deadline.Equal(out[j].goal.Deadline) {
			return out[i].goal.Deadline.Before(out[j].goal.Deadline)
		}
		return out[i].goal.ID < out[j].goal.ID
	})
	return out, nil
}

// scheduleSignature hashes the goal set, remaining amounts, and deadlines a
// schedule was computed from.
func scheduleSignature(goals []budgetGoal) string {
	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "%s|%s|%s|%s\n",
			g.goal.ID,
			g.goal.TargetAmount.String(),
			g.remaining.String(),
			g.goal.Deadline.UTC().Format(time.RFC3339))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
