// internal/server/positions.go
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/models"
)

var errInvalidPosition = errors.New("invalid position")

// PositionRequest is the intake shape for an opened trade.
type PositionRequest struct {
	OwnerWallet string  `json:"userWallet"`
	TokenMint   string  `json:"tokenMint"`
	BuyAmount   float64 `json:"buyAmount"`
	EntryPrice  float64 `json:"entryPrice"`
}

// PositionIntake validates and persists opened positions for the
// settlement engine to pick up.
type PositionIntake struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewPositionIntake(store storage.Storage, logger *zap.Logger) *PositionIntake {
	return &PositionIntake{
		store:  store,
		logger: logger.Named("positions"),
	}
}

func (p *PositionIntake) Save(ctx context.Context, req *PositionRequest) (*models.Position, error) {
	if req.OwnerWallet == "" || req.TokenMint == "" {
		return nil, fmt.Errorf("%w: missing wallet or token mint", errInvalidPosition)
	}
	if req.BuyAmount <= 0 || req.EntryPrice <= 0 {
		return nil, fmt.Errorf("%w: amount and entry price must be positive", errInvalidPosition)
	}

	pos := &models.Position{
		ID:          uuid.NewString(),
		OwnerWallet: req.OwnerWallet,
		TokenMint:   req.TokenMint,
		BuyAmount:   req.BuyAmount,
		EntryPrice:  req.EntryPrice,
		Status:      models.PositionStatusOpen,
	}
	if err := p.store.SavePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	p.logger.Info("Position opened",
		zap.String("position_id", pos.ID),
		zap.String("token_mint", pos.TokenMint),
		zap.Float64("buy_amount", pos.BuyAmount),
		zap.Float64("entry_price", pos.EntryPrice))

	return pos, nil
}
