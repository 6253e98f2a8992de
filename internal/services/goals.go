package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// GoalService manages the goal catalog. Deleting a goal cascades to its
// allocations, plans, and contributions in the store.
type GoalService struct {
	store     storage.Store
	recompute RecomputeTrigger
	now       Clock
}

func NewGoalService(store storage.Store, recompute RecomputeTrigger, now Clock) *GoalService {
	if now == nil {
		now = time.Now
	}
	return &GoalService{store: store, recompute: recompute, now: now}
}

func (s *GoalService) Create(ctx context.Context, g core.Goal) (core.Goal, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = core.GoalActive
	}
	now := s.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateGoal(g)
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

// Update rewrites a goal's editable fields. Allocations are untouched, so a
// target or deadline change flows into requirements on the next recompute.
func (s *GoalService) Update(ctx context.Context, g core.Goal) (core.Goal, error) {
	g.UpdatedAt = s.now()

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		existing, err := tx.GetGoal(g.ID)
		if err != nil {
			return err
		}
		g.CreatedAt = existing.CreatedAt
		if err := g.Validate(); err != nil {
			return err
		}
		return tx.UpdateGoal(g)
	})
	if err != nil {
		return core.Goal{}, err
	}

	if s.recompute != nil {
		s.recompute.TriggerRecompute("", []string{g.ID})
	}
	return g, nil
}

func (s *GoalService) Get(ctx context.Context, id string) (core.Goal, error) {
	var goal core.Goal
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		goal, err = tx.GetGoal(id)
		return err
	})
	return goal, err
}

func (s *GoalService) List(ctx context.Context, statuses ...core.GoalStatus) ([]core.Goal, error) {
	var goals []core.Goal
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		goals, err = tx.ListGoals(statuses...)
		return err
	})
	return goals, err
}

func (s *GoalService) Delete(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetGoal(id); err != nil {
			return err
		}
		return tx.DeleteGoal(id)
	})
}

// Status returns the funding requirement and status for one goal.
func (s *GoalService) Status(ctx context.Context, id string, conv Converter) (core.Requirement, error) {
	var req core.Requirement
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		goal, err := tx.GetGoal(id)
		if err != nil {
			return err
		}
		allocated := allocatedTotal(ctx, tx, conv, goal)
		req = core.ComputeRequirement(goal, allocated, s.now())
		return nil
	})
	return req, err
}
