package rates

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"risparmio/internal/cache"
)

// Converter wraps a Source with a per-pair TTL cache, request deduplication,
// and a stale-value fallback. Concurrent lookups for the same pair share one
// upstream fetch.
type Converter struct {
	source Source
	cache  *cache.LRUCache[decimal.Decimal]
	group  singleflight.Group
	bound  time.Duration
}

// ConverterConfig tunes the cache and fetch bound.
type ConverterConfig struct {
	// TTL is how long a fetched rate stays fresh (default 5m).
	TTL time.Duration

	// MaxPairs caps the number of cached currency pairs (default 256).
	MaxPairs int

	// FetchBound limits how long one upstream fetch may take (default 10s).
	FetchBound time.Duration
}

// DefaultConverterConfig returns sensible defaults.
func DefaultConverterConfig() ConverterConfig {
	return ConverterConfig{
		TTL:        5 * time.Minute,
		MaxPairs:   256,
		FetchBound: 10 * time.Second,
	}
}

func NewConverter(source Source, cfg ConverterConfig) *Converter {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = 256
	}
	if cfg.FetchBound <= 0 {
		cfg.FetchBound = 10 * time.Second
	}
	return &Converter{
		source: source,
		cache:  cache.NewLRUCache[decimal.Decimal](cfg.MaxPairs, cfg.TTL),
		bound:  cfg.FetchBound,
	}
}

// Rate returns the conversion rate from one currency to another. A fresh
// cached value wins; otherwise one deduplicated fetch runs under the bound,
// and on failure the last known value is served. ErrNotAvailable is returned
// only when no value has ever been seen for the pair.
func (c *Converter) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	key := PairKey(from, to)
	if rate, ok := c.cache.Get(key); ok {
		return rate, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.bound)
		defer cancel()
		return c.source.FetchRate(fetchCtx, from, to)
	})
	if err == nil {
		rate := result.(decimal.Decimal)
		c.cache.Set(key, rate)
		return rate, nil
	}

	if stale, ok := c.cache.GetStale(key); ok {
		slog.WarnContext(ctx, "Rate fetch failed, serving last known value",
			"pair", key,
			"error", err)
		return stale, nil
	}
	return decimal.Decimal{}, err
}

// Convert converts an amount between currencies using Rate.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	rate, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return amount.Mul(rate), nil
}

// Cache exposes the underlying cache for cleanup registration.
func (c *Converter) Cache() cache.Cleaner { return c.cache }
