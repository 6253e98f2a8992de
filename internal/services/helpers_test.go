package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
	"risparmio/internal/storage"
	"risparmio/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// testNow is a fixed reference instant so month arithmetic and undo windows
// are deterministic.
var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// fakeConverter converts through a fixed rate table keyed "FROM/TO".
// Identity pairs always convert. Missing pairs fail.
type fakeConverter struct {
	rates map[string]decimal.Decimal
}

func newFakeConverter(pairs map[string]string) *fakeConverter {
	rates := make(map[string]decimal.Decimal, len(pairs))
	for k, v := range pairs {
		rates[k] = dec(v)
	}
	return &fakeConverter{rates: rates}
}

func (c *fakeConverter) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := c.rates[from+"/"+to]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no rate for %s/%s", from, to)
	}
	return rate, nil
}

func (c *fakeConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate), nil
}

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu          sync.Mutex
	allocations []string // asset IDs
	plans       [][]string
	executions  []string // "recordID:status"
}

func (b *recordingBus) PublishAllocationChanged(_ context.Context, assetID string, _ []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allocations = append(b.allocations, assetID)
	return nil
}

func (b *recordingBus) PublishPlanRecalculated(_ context.Context, goalIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plans = append(b.plans, goalIDs)
	return nil
}

func (b *recordingBus) PublishExecutionStateChanged(_ context.Context, recordID, status string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executions = append(b.executions, recordID+":"+status)
	return nil
}

func (b *recordingBus) allocationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.allocations)
}

func seedGoal(store storage.Store, id, name, currency, target string, deadline time.Time) {
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateGoal(core.Goal{
			ID:           id,
			Name:         name,
			Currency:     currency,
			TargetAmount: dec(target),
			Deadline:     deadline,
			Status:       core.GoalActive,
			CreatedAt:    testNow.AddDate(0, -1, 0),
			UpdatedAt:    testNow.AddDate(0, -1, 0),
		})
	})
	if err != nil {
		panic(err)
	}
}

func seedAsset(store storage.Store, id, name, currency, amount string) {
	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		return tx.CreateAsset(core.Asset{
			ID:            id,
			Name:          name,
			Currency:      currency,
			CurrentAmount: dec(amount),
			UpdatedAt:     testNow,
		})
	})
	if err != nil {
		panic(err)
	}
}

func newTestStore() storage.Store {
	return memory.New()
}
