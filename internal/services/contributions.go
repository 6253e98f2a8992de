package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// ContributionService records deposit and reallocation events toward goals,
// optionally linked to an execution record.
type ContributionService struct {
	store   storage.Store
	tracker *ExecutionTracker
	now     Clock
}

func NewContributionService(store storage.Store, tracker *ExecutionTracker, now Clock) *ContributionService {
	if now == nil {
		now = time.Now
	}
	return &ContributionService{store: store, tracker: tracker, now: now}
}

// Record validates and persists one contribution. Linking to an execution
// record requires the record to exist and still be open: a Closed month's
// fulfillment is frozen and cannot accumulate further contributions.
func (s *ContributionService) Record(ctx context.Context, c core.Contribution) (core.Contribution, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if err := c.Validate(); err != nil {
		return core.Contribution{}, err
	}

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetGoal(c.GoalID); err != nil {
			return err
		}
		if _, err := tx.GetAsset(c.AssetID); err != nil {
			return err
		}
		if c.RecordID != nil {
			record, err := tx.GetExecution(*c.RecordID)
			if err != nil {
				return err
			}
			if record.Status == core.ExecutionClosed {
				return &core.StateError{Op: "contribute", Status: record.Status}
			}
		}
		return tx.InsertContribution(c)
	})
	if err != nil {
		return core.Contribution{}, err
	}

	if c.RecordID != nil && s.tracker != nil {
		s.tracker.InvalidateTotals(*c.RecordID)
	}
	return c, nil
}

// ListByRecord returns the contributions linked to an execution record.
func (s *ContributionService) ListByRecord(ctx context.Context, recordID string) ([]core.Contribution, error) {
	var out []core.Contribution
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListContributionsByRecord(recordID)
		return err
	})
	return out, err
}
