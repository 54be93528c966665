// internal/pay/reference.go
package pay

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// signatureSearchLimit bounds one resolve attempt. A reference key is
// fresh per request, so in practice it appears in at most one
// transaction.
const signatureSearchLimit = 1000

// SignatureFinder is the chain capability the resolver needs.
type SignatureFinder interface {
	FindSignaturesForAccount(ctx context.Context, account solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error)
}

// ReferenceResolver locates the transaction that includes a reference
// key among its account inputs. One RPC attempt per call; retry
// cadence belongs to the caller.
type ReferenceResolver struct {
	finder SignatureFinder
	logger *zap.Logger
}

func NewReferenceResolver(finder SignatureFinder, logger *zap.Logger) *ReferenceResolver {
	return &ReferenceResolver{
		finder: finder,
		logger: logger.Named("reference_resolver"),
	}
}

// FindReference returns the oldest successful signature mentioning the
// reference, or ErrReferenceNotFound when the chain has nothing yet.
func (r *ReferenceResolver) FindReference(ctx context.Context, reference solana.PublicKey) (solana.Signature, error) {
	signatures, err := r.finder.FindSignaturesForAccount(ctx, reference, signatureSearchLimit)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("signature lookup failed: %w", err)
	}

	// Results are newest first; the oldest mention is the payment.
	for i := len(signatures) - 1; i >= 0; i-- {
		info := signatures[i]
		if info == nil || info.Err != nil {
			continue
		}
		r.logger.Debug("Reference resolved",
			zap.String("reference", reference.String()),
			zap.String("signature", info.Signature.String()))
		return info.Signature, nil
	}

	return solana.Signature{}, ErrReferenceNotFound
}
