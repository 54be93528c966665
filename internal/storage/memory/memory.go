// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/models"
)

// memoryStorage keeps everything in maps guarded by one mutex. Used by
// tests and by the dev mode where no Postgres DSN is configured.
type memoryStorage struct {
	mu        sync.Mutex
	payments  map[string]*models.PaymentRequest // keyed by reference
	positions map[string]*models.Position       // keyed by id
}

// NewStorage returns an empty in-memory Storage.
func NewStorage() storage.Storage {
	return &memoryStorage{
		payments:  make(map[string]*models.PaymentRequest),
		positions: make(map[string]*models.Position),
	}
}

func (m *memoryStorage) RunMigrations() error { return nil }

func copyPayment(req *models.PaymentRequest) *models.PaymentRequest {
	cp := *req
	return &cp
}

func copyPosition(pos *models.Position) *models.Position {
	cp := *pos
	return &cp
}

func (m *memoryStorage) CreatePaymentRequest(_ context.Context, req *models.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[req.Reference]; exists {
		return storage.ErrConflict
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	m.payments[req.Reference] = copyPayment(req)
	return nil
}

func (m *memoryStorage) GetPaymentRequestByReference(_ context.Context, reference string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.payments[reference]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPayment(req), nil
}

func (m *memoryStorage) ConfirmPaymentRequest(_ context.Context, reference, signature, payload string) (*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.payments[reference]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if req.Status != models.PaymentStatusPending {
		return nil, storage.ErrConflict
	}
	now := time.Now().UTC()
	req.Status = models.PaymentStatusConfirmed
	req.TxSignature = signature
	req.ResultPayload = payload
	req.ConfirmedAt = &now
	return copyPayment(req), nil
}

func (m *memoryStorage) MarkPaymentDelivered(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, req := range m.payments {
		if req.ID != id {
			continue
		}
		if req.Status != models.PaymentStatusConfirmed {
			return storage.ErrConflict
		}
		now := time.Now().UTC()
		req.Status = models.PaymentStatusDelivered
		req.DeliveredAt = &now
		return nil
	}
	return storage.ErrNotFound
}

func (m *memoryStorage) RevenueSummary(_ context.Context) (*models.RevenueSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := &models.RevenueSummary{}
	for _, req := range m.payments {
		if req.Paid() {
			summary.Count++
			summary.TotalAmount += req.Amount
		}
	}
	return summary, nil
}

func (m *memoryStorage) ListRecentPayments(_ context.Context, limit int) ([]*models.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqs := make([]*models.PaymentRequest, 0, len(m.payments))
	for _, req := range m.payments {
		reqs = append(reqs, copyPayment(req))
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
	if limit > 0 && len(reqs) > limit {
		reqs = reqs[:limit]
	}
	return reqs, nil
}

func (m *memoryStorage) SavePosition(_ context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = time.Now().UTC()
	}
	if pos.Status == "" {
		pos.Status = models.PositionStatusOpen
	}
	m.positions[pos.ID] = copyPosition(pos)
	return nil
}

func (m *memoryStorage) GetPosition(_ context.Context, id string) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyPosition(pos), nil
}

func (m *memoryStorage) ListOpenPositions(_ context.Context) ([]*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var positions []*models.Position
	for _, pos := range m.positions {
		if pos.Status == models.PositionStatusOpen {
			positions = append(positions, copyPosition(pos))
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].CreatedAt.Before(positions[j].CreatedAt)
	})
	return positions, nil
}

func (m *memoryStorage) MarkPositionSold(_ context.Context, id string, profitPct float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if pos.Status != models.PositionStatusOpen {
		return storage.ErrConflict
	}
	now := time.Now().UTC()
	pos.Status = models.PositionStatusSold
	pos.ProfitPct = &profitPct
	pos.SoldAt = &now
	return nil
}
