package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

// stubProvider returns a fixed balance or error.
type stubProvider struct {
	balance decimal.Decimal
	err     error
}

func (p *stubProvider) FetchBalance(context.Context, string, string, string) (decimal.Decimal, error) {
	return p.balance, p.err
}

func TestAssetService_RefreshBalance(t *testing.T) {
	ctx := context.Background()

	newFixture := func(t *testing.T, provider *stubProvider) (*AssetService, *AllocationLedger) {
		t.Helper()
		store := newTestStore()
		seedGoal(store, "goal-a", "Trip", "EUR", "2000", testNow.AddDate(1, 0, 0))
		assets := NewAssetService(store, provider, nil, fixedClock(testNow))
		if _, err := assets.Create(ctx, core.Asset{
			ID:            "asset-1",
			Name:          "Wallet",
			Currency:      "EUR",
			CurrentAmount: dec("1000"),
			Chain:         "ethereum",
			Address:       "0xabc",
			Symbol:        "EURC",
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		return assets, NewAllocationLedger(store, nil, nil, fixedClock(testNow))
	}

	t.Run("applies the provider balance", func(t *testing.T) {
		assets, _ := newFixture(t, &stubProvider{balance: dec("1500")})
		asset, report, err := assets.RefreshBalance(ctx, "asset-1")
		if err != nil {
			t.Fatalf("RefreshBalance() error = %v", err)
		}
		if !asset.CurrentAmount.Equal(dec("1500")) {
			t.Errorf("balance = %s, want 1500", asset.CurrentAmount)
		}
		if report != nil {
			t.Errorf("unexpected over-allocation report: %+v", report)
		}
	})

	t.Run("reports over-allocation after a drop, never fixes it", func(t *testing.T) {
		assets, ledger := newFixture(t, &stubProvider{balance: dec("400")})
		if err := ledger.SetAllocation(ctx, "asset-1", "goal-a", dec("900")); err != nil {
			t.Fatalf("SetAllocation() error = %v", err)
		}

		asset, report, err := assets.RefreshBalance(ctx, "asset-1")
		if err != nil {
			t.Fatalf("RefreshBalance() error = %v", err)
		}
		if !asset.CurrentAmount.Equal(dec("400")) {
			t.Errorf("balance = %s, want 400", asset.CurrentAmount)
		}
		if report == nil {
			t.Fatal("no over-allocation report for allocations above balance")
		}
		if !report.Allocated.Equal(dec("900")) || !report.Balance.Equal(dec("400")) {
			t.Errorf("report = (%s, %s), want (900, 400)", report.Allocated, report.Balance)
		}

		// Allocations untouched.
		alloc, err := ledger.History(ctx, "asset-1", 5)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(alloc) != 1 {
			t.Errorf("history entries = %d, want the original 1 (no silent rebalance)", len(alloc))
		}
	})

	t.Run("provider failure leaves the stored balance", func(t *testing.T) {
		assets, _ := newFixture(t, &stubProvider{err: errors.New("rpc down")})
		if _, _, err := assets.RefreshBalance(ctx, "asset-1"); err == nil {
			t.Fatal("RefreshBalance() error = nil, want provider failure")
		}
		asset, err := assets.Get(ctx, "asset-1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !asset.CurrentAmount.Equal(dec("1000")) {
			t.Errorf("balance = %s, want untouched 1000", asset.CurrentAmount)
		}
	})

	t.Run("asset without chain coordinates is skipped", func(t *testing.T) {
		store := newTestStore()
		assets := NewAssetService(store, &stubProvider{balance: dec("777")}, nil, fixedClock(testNow))
		seedAsset(store, "asset-2", "Cash", "EUR", "100")

		asset, report, err := assets.RefreshBalance(ctx, "asset-2")
		if err != nil {
			t.Fatalf("RefreshBalance() error = %v", err)
		}
		if report != nil {
			t.Errorf("unexpected report: %+v", report)
		}
		if !asset.CurrentAmount.Equal(dec("100")) {
			t.Errorf("balance = %s, want untouched 100", asset.CurrentAmount)
		}
	})
}

func TestGoalService_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	goals := NewGoalService(store, nil, fixedClock(testNow))

	created, err := goals.Create(ctx, core.Goal{
		Name:         "Trip",
		Currency:     "EUR",
		TargetAmount: dec("1200"),
		Deadline:     testNow.AddDate(0, 6, 0),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Status != core.GoalActive {
		t.Errorf("created = %+v, want generated ID and active status", created)
	}

	created.TargetAmount = dec("1500")
	if _, err := goals.Update(ctx, created); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := goals.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.TargetAmount.Equal(dec("1500")) {
		t.Errorf("target = %s, want 1500", got.TargetAmount)
	}

	if err := goals.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := goals.Get(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}

	t.Run("rejects invalid", func(t *testing.T) {
		if _, err := goals.Create(ctx, core.Goal{Currency: "EUR", TargetAmount: dec("1")}); !errors.Is(err, core.ErrEmptyName) {
			t.Errorf("error = %v, want ErrEmptyName", err)
		}
	})
}
