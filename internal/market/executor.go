// internal/market/executor.go
package market

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	solclient "github.com/solpayhub/payhub/internal/blockchain/solana"
	"github.com/solpayhub/payhub/internal/wallet"
)

const swapMaxElapsed = 45 * time.Second

// Executor realizes a position by swapping it into SOL through the
// aggregator and submitting the signed transaction on-chain. A
// settlement signature is returned only after confirmed commitment;
// any failure along the way returns an error instead.
type Executor struct {
	jupiter     *JupiterClient
	chain       *solclient.Client
	trader      *wallet.Wallet
	slippageBps int
	logger      *zap.Logger
}

func NewExecutor(jupiter *JupiterClient, chain *solclient.Client, trader *wallet.Wallet, slippageBps int, logger *zap.Logger) *Executor {
	return &Executor{
		jupiter:     jupiter,
		chain:       chain,
		trader:      trader,
		slippageBps: slippageBps,
		logger:      logger.Named("swap_executor"),
	}
}

// SellForSettlement swaps amount base units of tokenMint into SOL.
// The whole quote-build-sign-submit sequence is retried with backoff
// because a quote goes stale with its blockhash; decode and signing
// failures are permanent.
func (e *Executor) SellForSettlement(ctx context.Context, tokenMint string, amount uint64) (solana.Signature, error) {
	op := func() (solana.Signature, error) {
		return e.executeOnce(ctx, tokenMint, amount)
	}

	sig, err := backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(swapMaxElapsed),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("swap execution failed: %w", err)
	}
	return sig, nil
}

func (e *Executor) executeOnce(ctx context.Context, tokenMint string, amount uint64) (solana.Signature, error) {
	quote, err := e.jupiter.GetQuote(ctx, tokenMint, WSOLMint, amount, e.slippageBps)
	if err != nil {
		return solana.Signature{}, err
	}

	encoded, err := e.jupiter.BuildSwap(ctx, quote, e.trader.PublicKey.String())
	if err != nil {
		return solana.Signature{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return solana.Signature{}, backoff.Permanent(fmt.Errorf("failed to decode swap transaction: %w", err))
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, backoff.Permanent(fmt.Errorf("failed to parse swap transaction: %w", err))
	}

	if err := e.trader.SignTransaction(tx); err != nil {
		return solana.Signature{}, backoff.Permanent(err)
	}

	sig, err := e.chain.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := e.chain.WaitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}

	e.logger.Info("Swap settled",
		zap.String("token_mint", tokenMint),
		zap.Uint64("amount", amount),
		zap.String("signature", sig.String()))

	return sig, nil
}
