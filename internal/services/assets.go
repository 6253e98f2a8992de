package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"risparmio/internal/chain"
	"risparmio/internal/core"
	"risparmio/internal/storage"
)

// OverAllocation flags an asset whose allocations exceed its balance after a
// refresh lowered it. The engine reports the condition and leaves the
// allocations alone; scaling them down would silently misstate money.
type OverAllocation struct {
	AssetID   string          `json:"assetId"`
	Allocated decimal.Decimal `json:"allocated"`
	Balance   decimal.Decimal `json:"balance"`
}

// AssetService manages the asset pool and refreshes balances from the
// on-chain provider.
type AssetService struct {
	store     storage.Store
	provider  chain.Provider
	recompute RecomputeTrigger
	now       Clock
}

func NewAssetService(store storage.Store, provider chain.Provider, recompute RecomputeTrigger, now Clock) *AssetService {
	if now == nil {
		now = time.Now
	}
	return &AssetService{store: store, provider: provider, recompute: recompute, now: now}
}

func (s *AssetService) Create(ctx context.Context, a core.Asset) (core.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UpdatedAt = s.now()
	if err := a.Validate(); err != nil {
		return core.Asset{}, err
	}

	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.CreateAsset(a)
	})
	if err != nil {
		return core.Asset{}, err
	}
	return a, nil
}

// Update rewrites the asset. A lowered balance can leave the asset
// over-allocated; the returned report is non-nil in that case and the caller
// decides how to rebalance.
func (s *AssetService) Update(ctx context.Context, a core.Asset) (core.Asset, *OverAllocation, error) {
	a.UpdatedAt = s.now()
	if err := a.Validate(); err != nil {
		return core.Asset{}, nil, err
	}

	var report *OverAllocation
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetAsset(a.ID); err != nil {
			return err
		}
		if err := tx.UpdateAsset(a); err != nil {
			return err
		}
		var err error
		report, err = overAllocationReport(tx, a)
		return err
	})
	if err != nil {
		return core.Asset{}, nil, err
	}

	if s.recompute != nil {
		s.recompute.TriggerRecompute(a.ID, nil)
	}
	return a, report, nil
}

func (s *AssetService) Get(ctx context.Context, id string) (core.Asset, error) {
	var asset core.Asset
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		asset, err = tx.GetAsset(id)
		return err
	})
	return asset, err
}

func (s *AssetService) List(ctx context.Context) ([]core.Asset, error) {
	var assets []core.Asset
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		assets, err = tx.ListAssets()
		return err
	})
	return assets, err
}

func (s *AssetService) Delete(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetAsset(id); err != nil {
			return err
		}
		return tx.DeleteAsset(id)
	})
}

// RefreshBalance pulls the asset's on-chain balance from the provider and
// stores it. Assets without chain coordinates are left alone. When the new
// balance is lower than the allocations claiming it, the over-allocation is
// reported, never silently fixed.
func (s *AssetService) RefreshBalance(ctx context.Context, id string) (core.Asset, *OverAllocation, error) {
	var (
		asset  core.Asset
		report *OverAllocation
	)
	err := s.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		asset, err = tx.GetAsset(id)
		return err
	})
	if err != nil {
		return core.Asset{}, nil, err
	}
	if asset.Chain == "" || asset.Address == "" {
		return asset, nil, nil
	}
	if s.provider == nil {
		return core.Asset{}, nil, chain.ErrUnavailable
	}

	balance, err := s.provider.FetchBalance(ctx, asset.Chain, asset.Address, asset.Symbol)
	if err != nil {
		return core.Asset{}, nil, err
	}

	err = s.store.WithTx(ctx, func(tx storage.Tx) error {
		asset, err = tx.GetAsset(id)
		if err != nil {
			return err
		}
		asset.CurrentAmount = balance
		asset.UpdatedAt = s.now()
		if err := tx.UpdateAsset(asset); err != nil {
			return err
		}
		report, err = overAllocationReport(tx, asset)
		return err
	})
	if err != nil {
		return core.Asset{}, nil, err
	}

	if report != nil {
		slog.WarnContext(ctx, "Asset over-allocated after balance refresh",
			"asset_id", id,
			"allocated", report.Allocated.String(),
			"balance", report.Balance.String())
	}
	if s.recompute != nil {
		s.recompute.TriggerRecompute(id, nil)
	}
	return asset, report, nil
}

func overAllocationReport(tx storage.Tx, asset core.Asset) (*OverAllocation, error) {
	allocs, err := tx.ListAllocationsByAsset(asset.ID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(asset.CurrentAmount) {
		return &OverAllocation{AssetID: asset.ID, Allocated: total, Balance: asset.CurrentAmount}, nil
	}
	return nil, nil
}
