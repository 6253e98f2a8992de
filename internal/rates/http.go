package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches rates from a JSON rate API. The endpoint is expected to
// answer GET {base}/rate?from=EUR&to=USD with {"rate": "1.08"}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source with a bounded request timeout so a slow
// provider can never stall an aggregation.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (s *HTTPSource) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	endpoint := fmt.Sprintf("%s/rate?from=%s&to=%s", s.baseURL, url.QueryEscape(from), url.QueryEscape(to))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch rate %s: %w", PairKey(from, to), ErrNotAvailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("rate provider returned %d for %s: %w",
			resp.StatusCode, PairKey(from, to), ErrNotAvailable)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode rate response: %w", err)
	}
	if !body.Rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("non-positive rate for %s: %w", PairKey(from, to), ErrNotAvailable)
	}
	return body.Rate, nil
}
