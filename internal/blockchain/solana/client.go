// internal/blockchain/solana/client.go
package solana

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	confirmPollInterval = 500 * time.Millisecond
	confirmTimeout      = 30 * time.Second
)

// maxSupportedTransactionVersion asks the node for v0 transactions as
// well as legacy ones; without it lookup-table transactions come back
// as an error.
var maxSupportedTransactionVersion = uint64(0)

// ConfirmedTransaction is a fetched transaction body together with its
// execution metadata (balances, loaded lookup-table addresses).
type ConfirmedTransaction struct {
	Tx   *solana.Transaction
	Meta *rpc.TransactionMeta
	Slot uint64
}

// Client wraps an ordered list of RPC endpoints. Calls go to the first
// endpoint and fail over to the next on transport error.
type Client struct {
	endpoints  []*endpoint
	commitment rpc.CommitmentType
	logger     *zap.Logger
}

type endpoint struct {
	client *rpc.Client
	url    string
}

// NewClient validates the URL list and builds the client. It does not
// dial: the first RPC call surfaces connectivity problems.
func NewClient(rpcURLs []string, commitment rpc.CommitmentType, logger *zap.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.New("empty RPC URL list")
	}

	var endpoints []*endpoint
	for _, urlStr := range rpcURLs {
		if _, err := url.Parse(urlStr); err != nil {
			logger.Warn("Invalid RPC URL", zap.String("url", urlStr), zap.Error(err))
			continue
		}
		endpoints = append(endpoints, &endpoint{
			client: rpc.New(urlStr),
			url:    urlStr,
		})
	}

	if len(endpoints) == 0 {
		return nil, errors.New("no valid RPC URLs provided")
	}

	return &Client{
		endpoints:  endpoints,
		commitment: commitment,
		logger:     logger.Named("solana"),
	}, nil
}

// Commitment returns the finality level the client queries at.
func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// withFailover runs fn against each endpoint in order until one
// succeeds. Only the last error is returned.
func withFailover[T any](c *Client, ctx context.Context, method string, fn func(*rpc.Client) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for _, ep := range c.endpoints {
		result, err := fn(ep.client)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		c.logger.Debug("RPC call failed, trying next endpoint",
			zap.String("method", method),
			zap.String("url", ep.url),
			zap.Error(err))
	}
	return zero, fmt.Errorf("all RPC endpoints failed for %s: %w", method, lastErr)
}

// FindSignaturesForAccount lists signatures of transactions that
// mention the given account, newest first.
func (c *Client) FindSignaturesForAccount(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	return withFailover(c, ctx, "getSignaturesForAddress", func(cl *rpc.Client) ([]*rpc.TransactionSignature, error) {
		return cl.GetSignaturesForAddressWithOpts(ctx, account, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: c.commitment,
		})
	})
}

// GetTransactionWithMeta fetches a transaction at the configured
// commitment and decodes its binary body. Both legacy and v0 encodings
// are handled.
func (c *Client) GetTransactionWithMeta(ctx context.Context, sig solana.Signature) (*ConfirmedTransaction, error) {
	result, err := withFailover(c, ctx, "getTransaction", func(cl *rpc.Client) (*rpc.GetTransactionResult, error) {
		return cl.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &maxSupportedTransactionVersion,
		})
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction %s not found", sig)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", sig, err)
	}

	return &ConfirmedTransaction{
		Tx:   tx,
		Meta: result.Meta,
		Slot: result.Slot,
	}, nil
}

// GetLatestBlockhash returns a recent blockhash for building
// transactions.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := withFailover(c, ctx, "getLatestBlockhash", func(cl *rpc.Client) (*rpc.GetLatestBlockhashResult, error) {
		return cl.GetLatestBlockhash(ctx, c.commitment)
	})
	if err != nil {
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction with preflight skipped,
// matching how swaps built by an aggregator are expected to be sent.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return withFailover(c, ctx, "sendTransaction", func(cl *rpc.Client) (solana.Signature, error) {
		return cl.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: c.commitment,
		})
	})
}

// WaitForConfirmation polls signature status until the transaction
// reaches the configured commitment, errors on-chain, or the wait
// times out.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out for %s: %w", sig, ctx.Err())
		case <-ticker.C:
			statuses, err := withFailover(c, ctx, "getSignatureStatuses", func(cl *rpc.Client) (*rpc.GetSignatureStatusesResult, error) {
				return cl.GetSignatureStatuses(ctx, false, sig)
			})
			if err != nil {
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on-chain: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
	}
}
