package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solpayhub/payhub/internal/insight"
	"github.com/solpayhub/payhub/internal/pay"
	"github.com/solpayhub/payhub/internal/settle"
	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/memory"
	"github.com/solpayhub/payhub/internal/storage/models"
)

type stubResolver struct {
	sig solana.Signature
	err error
}

func (s *stubResolver) FindReference(context.Context, solana.PublicKey) (solana.Signature, error) {
	return s.sig, s.err
}

type stubVerifier struct {
	err error
}

func (s *stubVerifier) VerifyTransfer(context.Context, solana.Signature, pay.VerifyParams) error {
	return s.err
}

type stubOracle struct {
	price float64
}

func (s *stubOracle) GetPrice(context.Context, string) (float64, error) {
	return s.price, nil
}

type stubSwapper struct{}

func (stubSwapper) SellForSettlement(context.Context, string, uint64) (solana.Signature, error) {
	return solana.Signature{0xAA}, nil
}

type serverFixture struct {
	handler  http.Handler
	store    storage.Storage
	resolver *stubResolver
	verifier *stubVerifier
	oracle   *stubOracle
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger := zap.NewNop()
	fx := &serverFixture{
		store:    memory.NewStorage(),
		resolver: &stubResolver{err: pay.ErrReferenceNotFound},
		verifier: &stubVerifier{},
		oracle:   &stubOracle{},
	}

	payments := pay.NewService(&pay.ServiceConfig{
		Store:     fx.store,
		Resolver:  fx.resolver,
		Verifier:  fx.verifier,
		Insights:  insight.NewGenerator(1),
		Recipient: solana.NewWallet().PublicKey(),
		AmountSOL: 0.0001,
		Label:     "SolAI PayHub",
		Logger:    logger,
	})
	settlement := settle.NewEngine(&settle.EngineConfig{
		Store:     fx.store,
		Prices:    fx.oracle,
		Swaps:     stubSwapper{},
		Threshold: 5.0,
		Workers:   2,
		Logger:    logger,
	})
	intake := NewPositionIntake(fx.store, logger)

	srv := New(payments, settlement, intake, ":0", logger)
	fx.handler = srv.Handler()
	return fx
}

func (fx *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateInsight_PaymentRequired(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/agent/insight", map[string]string{"agentId": "agent-7"})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["paymentId"])
	assert.NotEmpty(t, body["reference"])
	assert.NotEmpty(t, body["recipient"])
	assert.Equal(t, 0.0001, body["amount"])
	assert.Contains(t, body["paymentUrl"], "solana:")
}

func TestCreateInsight_EmptyBody(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/agent/insight", nil)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCallback_MissingReference(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/agent/callback", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_UnknownReference(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/agent/callback",
		map[string]string{"reference": solana.NewWallet().PublicKey().String()})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallback_StillPending(t *testing.T) {
	fx := newServerFixture(t)

	created := decodeBody(t, fx.do(t, http.MethodPost, "/api/agent/insight", nil))

	rec := fx.do(t, http.MethodPost, "/api/agent/callback",
		map[string]string{"reference": created["reference"].(string)})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "pending", decodeBody(t, rec)["status"])
}

func TestCallback_Violation(t *testing.T) {
	fx := newServerFixture(t)
	fx.resolver.sig, fx.resolver.err = solana.Signature{0x01}, nil
	fx.verifier.err = &pay.ViolationError{Reason: pay.ViolationInsufficientAmount, Detail: "short"}

	created := decodeBody(t, fx.do(t, http.MethodPost, "/api/agent/insight", nil))
	rec := fx.do(t, http.MethodPost, "/api/agent/callback",
		map[string]string{"reference": created["reference"].(string)})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "payment details mismatch", body["error"])
	assert.Equal(t, pay.ViolationInsufficientAmount, body["reason"])
}

func TestCallback_VerificationError(t *testing.T) {
	fx := newServerFixture(t)
	fx.resolver.sig, fx.resolver.err = solana.Signature{0x01}, nil
	fx.verifier.err = errors.New("rpc down")

	created := decodeBody(t, fx.do(t, http.MethodPost, "/api/agent/insight", nil))
	rec := fx.do(t, http.MethodPost, "/api/agent/callback",
		map[string]string{"reference": created["reference"].(string)})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation failed", decodeBody(t, rec)["error"])
}

func TestCallback_PaidAndIdempotent(t *testing.T) {
	fx := newServerFixture(t)
	fx.resolver.sig, fx.resolver.err = solana.Signature{0x01}, nil

	created := decodeBody(t, fx.do(t, http.MethodPost, "/api/agent/insight", nil))
	reference := created["reference"].(string)

	first := fx.do(t, http.MethodPost, "/api/agent/callback", map[string]string{"reference": reference})
	require.Equal(t, http.StatusOK, first.Code)
	firstBody := decodeBody(t, first)
	assert.Equal(t, "paid", firstBody["status"])
	require.NotNil(t, firstBody["insight"])
	assert.NotEmpty(t, firstBody["signature"])

	// A repeated callback replays the stored result.
	second := fx.do(t, http.MethodPost, "/api/agent/callback", map[string]string{"reference": reference})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, firstBody["insight"], decodeBody(t, second)["insight"])
}

func TestRevenue(t *testing.T) {
	fx := newServerFixture(t)
	fx.resolver.sig, fx.resolver.err = solana.Signature{0x01}, nil

	created := decodeBody(t, fx.do(t, http.MethodPost, "/api/agent/insight", nil))
	require.Equal(t, http.StatusOK,
		fx.do(t, http.MethodPost, "/api/agent/callback",
			map[string]string{"reference": created["reference"].(string)}).Code)

	rec := fx.do(t, http.MethodGet, "/api/agent/revenue", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["count"])
	assert.InDelta(t, 0.0001, summary["totalAmount"], 1e-9)
	assert.Len(t, body["recent"], 1)
}

func TestSavePosition(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/positions", map[string]any{
		"userWallet": "wallet-1",
		"tokenMint":  "MINT1",
		"buyAmount":  10.0,
		"entryPrice": 1.0,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	positions, err := fx.store.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "MINT1", positions[0].TokenMint)
	assert.Equal(t, models.PositionStatusOpen, positions[0].Status)
}

func TestSavePosition_Invalid(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/positions", map[string]any{
		"userWallet": "wallet-1",
		"tokenMint":  "MINT1",
		"buyAmount":  -1.0,
		"entryPrice": 1.0,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoSell(t *testing.T) {
	fx := newServerFixture(t)
	fx.oracle.price = 1.10

	require.NoError(t, fx.store.SavePosition(context.Background(), &models.Position{
		ID:          "pos-1",
		OwnerWallet: "wallet-1",
		TokenMint:   "MINT1",
		BuyAmount:   10,
		EntryPrice:  1.0,
		Status:      models.PositionStatusOpen,
	}))

	rec := fx.do(t, http.MethodGet, "/api/cron/auto-sell", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["checked"])
	assert.Equal(t, float64(1), body["sold"])
}

func TestHealth(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
