// Package chain supplies read-only on-chain balances for assets. Balances
// feed Asset.CurrentAmount; the engine never writes on-chain state.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnavailable = errors.New("balance provider unavailable")

// Provider fetches the current balance of an address for one token symbol.
type Provider interface {
	FetchBalance(ctx context.Context, chain, address, symbol string) (decimal.Decimal, error)
}

// HTTPProvider queries a JSON balance API:
// GET {base}/balance?chain=...&address=...&symbol=... -> {"amount": "0.42"}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type balanceResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

func (p *HTTPProvider) FetchBalance(ctx context.Context, chain, address, symbol string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("chain", chain)
	q.Set("address", address)
	q.Set("symbol", symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/balance?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("build balance request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch balance for %s on %s: %w", address, chain, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("balance provider returned %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode balance response: %w", err)
	}
	if body.Amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative balance from provider: %w", ErrUnavailable)
	}
	return body.Amount, nil
}
