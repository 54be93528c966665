// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/solpayhub/payhub/internal/storage/models"
)

var (
	// ErrNotFound is returned when no record matches the key.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-transition update
	// matched no row, i.e. the record is not in the expected state.
	ErrConflict = errors.New("record not in expected state")
)

// Storage is the persistence boundary. It is the single source of
// truth shared across concurrent invocations; callers hold records
// only as values for the duration of one pass.
type Storage interface {
	// Payment requests
	CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error
	GetPaymentRequestByReference(ctx context.Context, reference string) (*models.PaymentRequest, error)
	// ConfirmPaymentRequest transitions pending -> confirmed, setting the
	// transaction signature, result payload and confirmation time exactly
	// once. Returns ErrConflict if the request is no longer pending.
	ConfirmPaymentRequest(ctx context.Context, reference, signature, payload string) (*models.PaymentRequest, error)
	MarkPaymentDelivered(ctx context.Context, id string) error
	RevenueSummary(ctx context.Context) (*models.RevenueSummary, error)
	ListRecentPayments(ctx context.Context, limit int) ([]*models.PaymentRequest, error)

	// Positions
	SavePosition(ctx context.Context, pos *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	ListOpenPositions(ctx context.Context) ([]*models.Position, error)
	// MarkPositionSold transitions open -> sold, setting profit and sell
	// time atomically. Returns ErrConflict if the position is not open.
	MarkPositionSold(ctx context.Context, id string, profitPct float64) error

	RunMigrations() error
}
