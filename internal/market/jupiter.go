// internal/market/jupiter.go
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// WSOLMint is the wrapped SOL mint, the settlement currency for every
// auto-sell swap.
const WSOLMint = "So11111111111111111111111111111111111111112"

// JupiterClient talks to the Jupiter v6 aggregator HTTP API. Swaps are
// requested as legacy transactions, matching how they are signed and
// submitted downstream.
type JupiterClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewJupiterClient(baseURL string, logger *zap.Logger) *JupiterClient {
	return &JupiterClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger.Named("jupiter"),
	}
}

// Quote carries the aggregator's route for one swap. The raw body is
// passed back verbatim in the swap request.
type Quote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	raw json.RawMessage
}

type swapRequest struct {
	QuoteResponse       json.RawMessage `json:"quoteResponse"`
	UserPublicKey       string          `json:"userPublicKey"`
	WrapAndUnwrapSol    bool            `json:"wrapAndUnwrapSol"`
	AsLegacyTransaction bool            `json:"asLegacyTransaction"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// GetQuote requests a route selling amount base units of inputMint
// into outputMint.
func (j *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	query := url.Values{}
	query.Set("inputMint", inputMint)
	query.Set("outputMint", outputMint)
	query.Set("amount", strconv.FormatUint(amount, 10))
	query.Set("slippageBps", strconv.Itoa(slippageBps))
	query.Set("asLegacyTransaction", "true")

	endpoint := fmt.Sprintf("%s/quote?%s", j.baseURL, query.Encode())
	body, err := j.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	quote.raw = body

	j.logger.Debug("Quote received",
		zap.String("input_mint", inputMint),
		zap.String("in_amount", quote.InAmount),
		zap.String("out_amount", quote.OutAmount))

	return &quote, nil
}

// BuildSwap exchanges a quote for a base64-encoded unsigned swap
// transaction payable by userPublicKey.
func (j *JupiterClient) BuildSwap(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:       quote.raw,
		UserPublicKey:       userPublicKey,
		WrapAndUnwrapSol:    true,
		AsLegacyTransaction: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode swap request: %w", err)
	}

	body, err := j.doRequest(ctx, http.MethodPost, j.baseURL+"/swap", payload)
	if err != nil {
		return "", fmt.Errorf("swap request failed: %w", err)
	}

	var swap swapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return "", fmt.Errorf("failed to decode swap response: %w", err)
	}
	if swap.SwapTransaction == "" {
		return "", fmt.Errorf("swap response contains no transaction")
	}
	return swap.SwapTransaction, nil
}

func (j *JupiterClient) doRequest(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
