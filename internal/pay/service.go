// internal/pay/service.go
package pay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solpayhub/payhub/internal/insight"
	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/models"
)

// anonymousSubject is used when the caller does not identify itself.
const anonymousSubject = "anonymous"

// recentPaymentsLimit bounds the revenue endpoint's recent list.
const recentPaymentsLimit = 5

// Confirmation statuses reported to callers.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// Resolver locates a payment transaction for a reference key.
type Resolver interface {
	FindReference(ctx context.Context, reference solana.PublicKey) (solana.Signature, error)
}

// Verifier proves a located transaction pays the contracted amount.
type Verifier interface {
	VerifyTransfer(ctx context.Context, sig solana.Signature, params VerifyParams) error
}

// Notifier delivers the unlocked content out-of-band. Best effort.
type Notifier interface {
	SignalInsight(ctx context.Context, payload *insight.Insight) error
}

// ServiceConfig wires the payment verification service.
type ServiceConfig struct {
	Store     storage.Storage
	Resolver  Resolver
	Verifier  Verifier
	Insights  *insight.Generator
	Notifier  Notifier // may be nil
	Recipient solana.PublicKey
	AmountSOL float64
	Label     string
	Message   string
	Logger    *zap.Logger
}

// Service orchestrates request creation and payment confirmation. It
// holds no per-request state: the store is the source of truth and
// every invocation re-reads it, which is what makes Confirm safe to
// call concurrently for the same reference.
type Service struct {
	store     storage.Storage
	resolver  Resolver
	verifier  Verifier
	insights  *insight.Generator
	notifier  Notifier
	recipient solana.PublicKey
	amountSOL float64
	label     string
	message   string
	logger    *zap.Logger
}

func NewService(cfg *ServiceConfig) *Service {
	return &Service{
		store:     cfg.Store,
		resolver:  cfg.Resolver,
		verifier:  cfg.Verifier,
		insights:  cfg.Insights,
		notifier:  cfg.Notifier,
		recipient: cfg.Recipient,
		amountSOL: cfg.AmountSOL,
		label:     cfg.Label,
		message:   cfg.Message,
		logger:    cfg.Logger.Named("pay_service"),
	}
}

// CreateResult is the wallet-facing payment offer.
type CreateResult struct {
	RequestID  string  `json:"paymentId"`
	Reference  string  `json:"reference"`
	Amount     float64 `json:"amount"`
	Recipient  string  `json:"recipient"`
	PaymentURL string  `json:"paymentUrl"`
}

// CreateRequest persists a pending payment request keyed by a fresh
// single-use reference public key.
func (s *Service) CreateRequest(ctx context.Context, subjectID string) (*CreateResult, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		subjectID = anonymousSubject
	}

	referenceKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference key: %w", err)
	}
	reference := referenceKey.PublicKey()

	req := &models.PaymentRequest{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Reference: reference.String(),
		Amount:    s.amountSOL,
		Status:    models.PaymentStatusPending,
	}
	if err := s.store.CreatePaymentRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to persist payment request: %w", err)
	}

	paymentURL := EncodeTransferRequestURL(TransferRequestParams{
		Recipient: s.recipient,
		Amount:    s.amountSOL,
		Reference: reference,
		Label:     s.label,
		Message:   s.message,
		Memo:      req.ID,
	})

	s.logger.Info("Payment request created",
		zap.String("request_id", req.ID),
		zap.String("subject_id", subjectID),
		zap.String("reference", req.Reference))

	return &CreateResult{
		RequestID:  req.ID,
		Reference:  req.Reference,
		Amount:     s.amountSOL,
		Recipient:  s.recipient.String(),
		PaymentURL: paymentURL,
	}, nil
}

// ConfirmResult is the outcome of one confirmation attempt.
type ConfirmResult struct {
	Status    string          `json:"status"`
	Signature string          `json:"signature,omitempty"`
	Insight   json.RawMessage `json:"insight,omitempty"`
}

// Confirm runs one resolve+verify attempt for the reference.
//
// Idempotent: an already paid request returns the stored result with no
// chain calls. A missing on-chain transaction reports StatusPending. A
// verification violation is returned as *ViolationError and leaves the
// request pending and payable. On success the confirmed state is
// persisted first; delivery side effects are a best-effort second
// phase that never reverts the confirmation.
func (s *Service) Confirm(ctx context.Context, reference string) (*ConfirmResult, error) {
	req, err := s.store.GetPaymentRequestByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if req.Paid() {
		return paidResult(req), nil
	}

	referenceKey, err := solana.PublicKeyFromBase58(reference)
	if err != nil {
		return nil, newViolation(ViolationTransactionInvalid, "malformed reference %q", reference)
	}

	sig, err := s.resolver.FindReference(ctx, referenceKey)
	if errors.Is(err, ErrReferenceNotFound) {
		return &ConfirmResult{Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reference resolution failed: %w", err)
	}

	if err := s.verifier.VerifyTransfer(ctx, sig, VerifyParams{
		Recipient: s.recipient,
		AmountSOL: req.Amount,
		Reference: referenceKey,
	}); err != nil {
		if violation, ok := AsViolation(err); ok {
			s.logger.Warn("Payment verification violation",
				zap.String("reference", reference),
				zap.String("signature", sig.String()),
				zap.String("reason", violation.Reason))
		}
		return nil, err
	}

	payload := s.insights.Generate()
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode insight: %w", err)
	}

	confirmed, err := s.store.ConfirmPaymentRequest(ctx, reference, sig.String(), string(encoded))
	if errors.Is(err, storage.ErrConflict) {
		// A concurrent confirmation won the compare-and-transition;
		// return its stored result.
		stored, readErr := s.store.GetPaymentRequestByReference(ctx, reference)
		if readErr != nil {
			return nil, readErr
		}
		return paidResult(stored), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment request: %w", err)
	}

	s.logger.Info("Payment confirmed",
		zap.String("request_id", confirmed.ID),
		zap.String("reference", reference),
		zap.String("signature", sig.String()))

	s.deliver(ctx, confirmed, payload)

	return paidResult(confirmed), nil
}

// deliver performs the post-confirmation side effects. Failures are
// logged, never propagated: the request stays confirmed and the
// delivery transition can be retried later.
func (s *Service) deliver(ctx context.Context, req *models.PaymentRequest, payload *insight.Insight) {
	if s.notifier != nil {
		if err := s.notifier.SignalInsight(ctx, payload); err != nil {
			s.logger.Warn("Insight notification failed",
				zap.String("request_id", req.ID),
				zap.Error(err))
		}
	}
	if err := s.store.MarkPaymentDelivered(ctx, req.ID); err != nil {
		s.logger.Warn("Failed to mark payment delivered",
			zap.String("request_id", req.ID),
			zap.Error(err))
	}
}

func paidResult(req *models.PaymentRequest) *ConfirmResult {
	return &ConfirmResult{
		Status:    StatusPaid,
		Signature: req.TxSignature,
		Insight:   json.RawMessage(req.ResultPayload),
	}
}

// RevenueReport is the read-only projection over paid requests.
type RevenueReport struct {
	Summary *models.RevenueSummary   `json:"summary"`
	Recent  []*models.PaymentRequest `json:"recent"`
}

// Revenue aggregates paid requests plus a bounded recent list.
func (s *Service) Revenue(ctx context.Context) (*RevenueReport, error) {
	summary, err := s.store.RevenueSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build revenue summary: %w", err)
	}
	recent, err := s.store.ListRecentPayments(ctx, recentPaymentsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent payments: %w", err)
	}
	return &RevenueReport{Summary: summary, Recent: recent}, nil
}
