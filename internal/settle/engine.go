// internal/settle/engine.go
package settle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/models"
)

// tokenDecimalsFactor converts whole tokens to base units, assuming
// the standard 9 decimals SPL tokens are minted with.
const tokenDecimalsFactor = 1e9

// PriceOracle returns the current quote price for a token mint.
type PriceOracle interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// SwapExecutor sells a token amount into the settlement currency and
// returns the on-chain settlement signature.
type SwapExecutor interface {
	SellForSettlement(ctx context.Context, tokenMint string, amount uint64) (solana.Signature, error)
}

// SellNotifier announces an executed sell. Best effort.
type SellNotifier interface {
	SellAlert(ctx context.Context, tokenMint string, profitPct float64, signature string) error
}

// Result reports one settlement pass.
type Result struct {
	Checked int `json:"checked"`
	Sold    int `json:"sold"`
}

// Engine runs one settlement pass per external trigger: scan open
// positions, sell those past the profit threshold. The engine keeps no
// state across passes; the store is re-read every time.
type Engine struct {
	store     storage.Storage
	prices    PriceOracle
	swaps     SwapExecutor
	notifier  SellNotifier // may be nil
	threshold float64
	workers   int
	logger    *zap.Logger

	// inFlight guards individual positions so overlapping triggers
	// never process the same id concurrently.
	inFlight sync.Map
}

type EngineConfig struct {
	Store     storage.Storage
	Prices    PriceOracle
	Swaps     SwapExecutor
	Notifier  SellNotifier
	Threshold float64
	Workers   int
	Logger    *zap.Logger
}

func NewEngine(cfg *EngineConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		store:     cfg.Store,
		prices:    cfg.Prices,
		swaps:     cfg.Swaps,
		notifier:  cfg.Notifier,
		threshold: cfg.Threshold,
		workers:   workers,
		logger:    cfg.Logger.Named("settlement"),
	}
}

// Run processes all currently open positions with bounded parallelism.
// Failures are isolated per position: a dead price feed or a failed
// swap leaves that position open for the next pass and never aborts
// the rest.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	positions, err := e.store.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}

	var sold atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			if _, loaded := e.inFlight.LoadOrStore(pos.ID, struct{}{}); loaded {
				e.logger.Debug("Position already in flight, skipping",
					zap.String("position_id", pos.ID))
				return nil
			}
			defer e.inFlight.Delete(pos.ID)

			didSell, err := e.processPosition(gctx, pos)
			if err != nil {
				e.logger.Error("Failed to process position",
					zap.String("position_id", pos.ID),
					zap.String("token_mint", pos.TokenMint),
					zap.Error(err))
				return nil
			}
			if didSell {
				sold.Add(1)
			}
			return nil
		})
	}

	_ = g.Wait()

	result := &Result{
		Checked: len(positions),
		Sold:    int(sold.Load()),
	}
	e.logger.Info("Settlement pass complete",
		zap.Int("checked", result.Checked),
		zap.Int("sold", result.Sold))
	return result, nil
}

// processPosition decides sell/hold for one position and settles it.
// The position is marked sold only after the executor returned a
// settlement signature.
func (e *Engine) processPosition(ctx context.Context, pos *models.Position) (bool, error) {
	if pos.EntryPrice <= 0 || pos.BuyAmount <= 0 ||
		math.IsNaN(pos.EntryPrice) || math.IsNaN(pos.BuyAmount) {
		e.logger.Warn("Skipping position with invalid entry data",
			zap.String("position_id", pos.ID),
			zap.Float64("entry_price", pos.EntryPrice),
			zap.Float64("buy_amount", pos.BuyAmount))
		return false, nil
	}

	price, err := e.prices.GetPrice(ctx, pos.TokenMint)
	if err != nil {
		// Price unavailable is a hold, not a failure: the position is
		// reconsidered on the next pass.
		e.logger.Warn("Price unavailable, holding position",
			zap.String("position_id", pos.ID),
			zap.String("token_mint", pos.TokenMint),
			zap.Error(err))
		return false, nil
	}

	profitPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if profitPct < e.threshold {
		return false, nil
	}

	amount := uint64(math.Floor(pos.BuyAmount * tokenDecimalsFactor))
	if amount == 0 {
		return false, nil
	}

	e.logger.Info("Profit threshold crossed, selling",
		zap.String("position_id", pos.ID),
		zap.String("token_mint", pos.TokenMint),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("current_price", price),
		zap.Float64("profit_pct", profitPct))

	sig, err := e.swaps.SellForSettlement(ctx, pos.TokenMint, amount)
	if err != nil {
		return false, fmt.Errorf("swap failed, position stays open: %w", err)
	}

	if err := e.store.MarkPositionSold(ctx, pos.ID, profitPct); err != nil {
		// The swap settled on-chain but the record did not transition.
		// Surfacing the signature is all we can do here.
		return false, fmt.Errorf("swap %s settled but position not marked sold: %w", sig, err)
	}

	if e.notifier != nil {
		if err := e.notifier.SellAlert(ctx, pos.TokenMint, profitPct, sig.String()); err != nil {
			e.logger.Warn("Sell alert failed",
				zap.String("position_id", pos.ID),
				zap.Error(err))
		}
	}

	return true, nil
}
