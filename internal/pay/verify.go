// internal/pay/verify.go
package pay

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/solpayhub/payhub/internal/blockchain/solana"
)

// systemTransferIndex is the SystemProgram instruction enum value for
// a native transfer; the instruction data is u32 index + u64 lamports,
// both little-endian.
const (
	systemTransferIndex    = 2
	systemTransferDataSize = 12
)

// TransactionFetcher is the chain capability the verifier needs.
type TransactionFetcher interface {
	GetTransactionWithMeta(ctx context.Context, sig solana.Signature) (*solclient.ConfirmedTransaction, error)
}

// VerifyParams pins down the payment the transaction must prove.
type VerifyParams struct {
	Recipient solana.PublicKey
	AmountSOL float64
	Reference solana.PublicKey
}

// TransferVerifier proves, from the transaction body and its execution
// metadata alone, that a qualifying native transfer happened.
type TransferVerifier struct {
	fetcher TransactionFetcher
	logger  *zap.Logger
}

func NewTransferVerifier(fetcher TransactionFetcher, logger *zap.Logger) *TransferVerifier {
	return &TransferVerifier{
		fetcher: fetcher,
		logger:  logger.Named("transfer_verifier"),
	}
}

// accountList is the complete ordered account list of a transaction.
// Instruction account indices are defined relative to this ordering:
// static keys first, then lookup-table writable keys, then
// lookup-table readonly keys. Legacy transactions have no lookup
// section, so the list is the static keys alone.
type accountList struct {
	keys []solana.PublicKey
}

func resolveAccountList(tx *solana.Transaction, meta *rpc.TransactionMeta) *accountList {
	static := tx.Message.AccountKeys
	if tx.Message.GetVersion() == solana.MessageVersionLegacy {
		return &accountList{keys: static}
	}

	keys := make([]solana.PublicKey, 0, len(static)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, static...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	return &accountList{keys: keys}
}

// indexOf returns the position of key in the list, or -1.
func (l *accountList) indexOf(key solana.PublicKey) int {
	for i, k := range l.keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}

// at resolves an instruction account index, failing closed on indices
// outside the list.
func (l *accountList) at(index uint16) (solana.PublicKey, bool) {
	if int(index) >= len(l.keys) {
		return solana.PublicKey{}, false
	}
	return l.keys[index], true
}

// VerifyTransfer checks the transaction identified by sig against
// params. Any structural anomaly is a hard violation, never a silent
// pass.
func (v *TransferVerifier) VerifyTransfer(ctx context.Context, sig solana.Signature, params VerifyParams) error {
	fetched, err := v.fetcher.GetTransactionWithMeta(ctx, sig)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction %s: %w", sig, err)
	}
	if fetched == nil || fetched.Tx == nil {
		return newViolation(ViolationTransactionInvalid, "transaction %s not found", sig)
	}
	if fetched.Meta == nil {
		return newViolation(ViolationTransactionInvalid, "transaction %s has no metadata", sig)
	}
	if fetched.Meta.Err != nil {
		return newViolation(ViolationTransactionInvalid, "transaction %s failed on-chain", sig)
	}

	accounts := resolveAccountList(fetched.Tx, fetched.Meta)

	recipientIndex := accounts.indexOf(params.Recipient)
	if recipientIndex < 0 {
		return newViolation(ViolationRecipientNotPresent, "recipient %s not present in transaction", params.Recipient)
	}

	// Find the system transfer whose destination is exactly the
	// recipient. "Any transfer mentioning the recipient" is not enough:
	// a multi-instruction transaction could otherwise satisfy
	// verification via an unrelated transfer.
	transfer := v.findTransferToRecipient(fetched.Tx.Message.Instructions, accounts, params.Recipient)
	if transfer == nil {
		return newViolation(ViolationTransferNotFound, "no system transfer to %s", params.Recipient)
	}

	// The reference must be bound to the same instruction. Without
	// this, a real payment to the same recipient could be replayed to
	// claim a different request.
	if !v.instructionMentions(transfer, accounts, params.Reference) {
		return newViolation(ViolationReferenceNotBound, "reference %s not present in transfer instruction", params.Reference)
	}

	expectedLamports := LamportsFromSOL(params.AmountSOL)
	if recipientIndex >= len(fetched.Meta.PreBalances) || recipientIndex >= len(fetched.Meta.PostBalances) {
		return newViolation(ViolationTransactionInvalid, "balance arrays do not cover recipient index %d", recipientIndex)
	}
	pre := fetched.Meta.PreBalances[recipientIndex]
	post := fetched.Meta.PostBalances[recipientIndex]
	if post < pre || post-pre < expectedLamports {
		var delta int64
		if post >= pre {
			delta = int64(post - pre)
		} else {
			delta = -int64(pre - post)
		}
		return newViolation(ViolationInsufficientAmount,
			"recipient balance delta %d below expected %d lamports", delta, expectedLamports)
	}

	v.logger.Debug("Transfer verified",
		zap.String("signature", sig.String()),
		zap.String("recipient", params.Recipient.String()),
		zap.Uint64("lamports", post-pre))

	return nil
}

// findTransferToRecipient scans instructions for a system-program
// native transfer whose second account (the destination) matches the
// recipient exactly.
func (v *TransferVerifier) findTransferToRecipient(
	instructions []solana.CompiledInstruction,
	accounts *accountList,
	recipient solana.PublicKey,
) *solana.CompiledInstruction {
	for i := range instructions {
		ix := &instructions[i]

		program, ok := accounts.at(ix.ProgramIDIndex)
		if !ok || !program.Equals(solana.SystemProgramID) {
			continue
		}
		if len(ix.Data) < systemTransferDataSize {
			continue
		}
		if binary.LittleEndian.Uint32(ix.Data[0:4]) != systemTransferIndex {
			continue
		}
		if len(ix.Accounts) < 2 {
			continue
		}
		dest, ok := accounts.at(ix.Accounts[1])
		if !ok || !dest.Equals(recipient) {
			continue
		}
		return ix
	}
	return nil
}

// instructionMentions reports whether any account of the instruction
// resolves to key.
func (v *TransferVerifier) instructionMentions(ix *solana.CompiledInstruction, accounts *accountList, key solana.PublicKey) bool {
	for _, idx := range ix.Accounts {
		account, ok := accounts.at(idx)
		if ok && account.Equals(key) {
			return true
		}
	}
	return false
}

// LamportsFromSOL converts a SOL amount to the chain's smallest unit.
func LamportsFromSOL(amount float64) uint64 {
	return uint64(math.Round(amount * float64(solana.LAMPORTS_PER_SOL)))
}
