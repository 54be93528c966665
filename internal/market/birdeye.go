// internal/market/birdeye.go
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PriceClient queries the Birdeye public price endpoint for the
// current quote of a token mint.
type PriceClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewPriceClient fails fast on a missing API key so a misconfigured
// deployment is caught at startup, not mid-pass.
func NewPriceClient(baseURL, apiKey string, logger *zap.Logger) (*PriceClient, error) {
	if apiKey == "" {
		return nil, errors.New("missing Birdeye API key")
	}
	return &PriceClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.Named("birdeye"),
	}, nil
}

type birdeyePriceResponse struct {
	Data struct {
		Value float64 `json:"value"`
		Price float64 `json:"price"`
	} `json:"data"`
	Success bool `json:"success"`
}

// GetPrice returns the current price for the mint. Any transport or
// shape problem is an error; callers decide whether to skip or abort.
func (p *PriceClient) GetPrice(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/public/price?address=%s", p.baseURL, mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create price request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("X-API-KEY", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed birdeyePriceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	// Older deployments report "price" instead of "value".
	price := parsed.Data.Value
	if price == 0 {
		price = parsed.Data.Price
	}
	if price <= 0 {
		return 0, fmt.Errorf("no price available for %s", mint)
	}

	p.logger.Debug("Price fetched",
		zap.String("mint", mint),
		zap.Float64("price", price))

	return price, nil
}
