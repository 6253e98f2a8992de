// Package rates provides currency conversion for display aggregation and
// budget feasibility. Rates come from an external provider, are cached per
// currency pair with a short TTL, and degrade to the last known value rather
// than blocking or failing callers.
package rates

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotAvailable is returned when no rate for a pair can be produced, even
// from the stale cache.
var ErrNotAvailable = errors.New("exchange rate not available")

// Source fetches a single conversion rate from outside the engine.
type Source interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticSource serves rates from a fixed table. Used in tests and for
// single-currency deployments.
type StaticSource map[string]decimal.Decimal

// PairKey builds the cache/table key for a currency pair.
func PairKey(from, to string) string { return from + "/" + to }

func (s StaticSource) FetchRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := s[PairKey(from, to)]
	if !ok {
		return decimal.Decimal{}, ErrNotAvailable
	}
	return rate, nil
}
