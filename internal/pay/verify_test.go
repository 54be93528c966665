package pay

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	solclient "github.com/solpayhub/payhub/internal/blockchain/solana"
)

type fakeFetcher struct {
	result *solclient.ConfirmedTransaction
	err    error
	calls  int
}

func (f *fakeFetcher) GetTransactionWithMeta(_ context.Context, _ solana.Signature) (*solclient.ConfirmedTransaction, error) {
	f.calls++
	return f.result, f.err
}

func transferData(lamports uint64) solana.Base58 {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return solana.Base58(data)
}

var (
	testPayer     = solana.NewWallet().PublicKey()
	testRecipient = solana.NewWallet().PublicKey()
	testReference = solana.NewWallet().PublicKey()
	testBystander = solana.NewWallet().PublicKey()
	testSig       = solana.Signature{0x01, 0x02}
)

const testAmountSOL = 0.0001 // 100_000 lamports

// legacyPayment builds a flat-key transaction paying lamports to the
// recipient with the reference bound to the transfer instruction.
// Account order: payer, recipient, reference, system program.
func legacyPayment(lamports uint64, received uint64) *solclient.ConfirmedTransaction {
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{testPayer, testRecipient, testReference, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 3,
					Accounts:       []uint16{0, 1, 2},
					Data:           transferData(lamports),
				},
			},
		},
	}
	return &solclient.ConfirmedTransaction{
		Tx: tx,
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000, 500_000, 0, 1},
			PostBalances: []uint64{1_000_000_000 - received, 500_000 + received, 0, 1},
		},
	}
}

// v0Payment is the semantically identical transaction in the
// lookup-table-extended encoding: recipient and reference arrive via
// the resolved address lists, not the static keys.
// Combined account order: payer, system program, recipient (writable),
// reference (readonly).
func v0Payment(lamports uint64, received uint64) *solclient.ConfirmedTransaction {
	msg := solana.Message{
		AccountKeys: []solana.PublicKey{testPayer, solana.SystemProgramID},
		Instructions: []solana.CompiledInstruction{
			{
				ProgramIDIndex: 1,
				Accounts:       []uint16{0, 2, 3},
				Data:           transferData(lamports),
			},
		},
	}
	msg.SetVersion(solana.MessageVersionV0)
	return &solclient.ConfirmedTransaction{
		Tx: &solana.Transaction{Message: msg},
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000, 1, 500_000, 0},
			PostBalances: []uint64{1_000_000_000 - received, 1, 500_000 + received, 0},
			LoadedAddresses: rpc.LoadedAddresses{
				Writable: []solana.PublicKey{testRecipient},
				ReadOnly: []solana.PublicKey{testReference},
			},
		},
	}
}

func testParams() VerifyParams {
	return VerifyParams{
		Recipient: testRecipient,
		AmountSOL: testAmountSOL,
		Reference: testReference,
	}
}

func newVerifier(result *solclient.ConfirmedTransaction) *TransferVerifier {
	return NewTransferVerifier(&fakeFetcher{result: result}, zap.NewNop())
}

func TestVerifyTransfer_LegacyEncoding(t *testing.T) {
	v := newVerifier(legacyPayment(100_000, 100_000))
	err := v.VerifyTransfer(context.Background(), testSig, testParams())
	require.NoError(t, err)
}

func TestVerifyTransfer_V0Encoding(t *testing.T) {
	v := newVerifier(v0Payment(100_000, 100_000))
	err := v.VerifyTransfer(context.Background(), testSig, testParams())
	require.NoError(t, err)
}

// Equivalent semantic transactions must get the same verdict in both
// encodings, for acceptance and for every rejection reason.
func TestVerifyTransfer_EncodingEquivalence(t *testing.T) {
	cases := []struct {
		name     string
		lamports uint64
		received uint64
		wantOK   bool
	}{
		{"exact amount", 100_000, 100_000, true},
		{"overpayment", 250_000, 250_000, true},
		{"underpayment", 50_000, 50_000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			legacyErr := newVerifier(legacyPayment(tc.lamports, tc.received)).
				VerifyTransfer(context.Background(), testSig, testParams())
			v0Err := newVerifier(v0Payment(tc.lamports, tc.received)).
				VerifyTransfer(context.Background(), testSig, testParams())

			if tc.wantOK {
				assert.NoError(t, legacyErr)
				assert.NoError(t, v0Err)
				return
			}
			legacyViolation, ok := AsViolation(legacyErr)
			require.True(t, ok)
			v0Violation, ok := AsViolation(v0Err)
			require.True(t, ok)
			assert.Equal(t, legacyViolation.Reason, v0Violation.Reason)
		})
	}
}

func TestVerifyTransfer_RecipientNotPresent(t *testing.T) {
	fetched := legacyPayment(100_000, 100_000)
	fetched.Tx.Message.AccountKeys[1] = testBystander

	err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
	violation, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, ViolationRecipientNotPresent, violation.Reason)
}

// A transfer to someone else does not count even when the recipient
// appears elsewhere in the transaction.
func TestVerifyTransfer_TransferToOtherAccount(t *testing.T) {
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{testPayer, testBystander, testRecipient, testReference, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 4,
					Accounts:       []uint16{0, 1, 3},
					Data:           transferData(100_000),
				},
			},
		},
	}
	fetched := &solclient.ConfirmedTransaction{
		Tx: tx,
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000, 0, 500_000, 0, 1},
			PostBalances: []uint64{999_900_000, 100_000, 500_000, 0, 1},
		},
	}

	err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
	violation, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, ViolationTransferNotFound, violation.Reason)
}

// Reference binding is mandatory: a correct payment without the
// reference in the same instruction must not satisfy the request.
func TestVerifyTransfer_ReferenceNotBound(t *testing.T) {
	fetched := legacyPayment(100_000, 100_000)
	fetched.Tx.Message.Instructions[0].Accounts = []uint16{0, 1}

	err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
	violation, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, ViolationReferenceNotBound, violation.Reason)
}

// A matching transfer below the contracted amount is rejected even if
// a later unrelated instruction moves funds elsewhere: the recipient's
// own balance delta decides.
func TestVerifyTransfer_UnderpaymentWithUnrelatedInstruction(t *testing.T) {
	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{testPayer, testRecipient, testReference, testBystander, solana.SystemProgramID},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 4,
					Accounts:       []uint16{0, 1, 2},
					Data:           transferData(50_000),
				},
				{
					ProgramIDIndex: 4,
					Accounts:       []uint16{0, 3},
					Data:           transferData(100_000),
				},
			},
		},
	}
	fetched := &solclient.ConfirmedTransaction{
		Tx: tx,
		Meta: &rpc.TransactionMeta{
			PreBalances:  []uint64{1_000_000_000, 500_000, 0, 0, 1},
			PostBalances: []uint64{999_850_000, 550_000, 0, 100_000, 1},
		},
	}

	err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
	violation, ok := AsViolation(err)
	require.True(t, ok)
	assert.Equal(t, ViolationInsufficientAmount, violation.Reason)
}

// Incidental extra lamports landing in the recipient account alongside
// the contracted transfer must not cause a false negative.
func TestVerifyTransfer_OverpaymentAccepted(t *testing.T) {
	v := newVerifier(legacyPayment(100_000, 150_000))
	err := v.VerifyTransfer(context.Background(), testSig, testParams())
	require.NoError(t, err)
}

func TestVerifyTransfer_StructuralAnomalies(t *testing.T) {
	t.Run("missing metadata", func(t *testing.T) {
		fetched := legacyPayment(100_000, 100_000)
		fetched.Meta = nil

		err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
		violation, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, ViolationTransactionInvalid, violation.Reason)
	})

	t.Run("failed on-chain", func(t *testing.T) {
		fetched := legacyPayment(100_000, 100_000)
		fetched.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

		err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
		violation, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, ViolationTransactionInvalid, violation.Reason)
	})

	t.Run("no system transfer instruction", func(t *testing.T) {
		fetched := legacyPayment(100_000, 100_000)
		fetched.Tx.Message.Instructions[0].Data = solana.Base58{0x01}

		err := newVerifier(fetched).VerifyTransfer(context.Background(), testSig, testParams())
		violation, ok := AsViolation(err)
		require.True(t, ok)
		assert.Equal(t, ViolationTransferNotFound, violation.Reason)
	})
}

func TestLamportsFromSOL(t *testing.T) {
	assert.Equal(t, uint64(100_000), LamportsFromSOL(0.0001))
	assert.Equal(t, uint64(1_000_000_000), LamportsFromSOL(1))
	assert.Equal(t, uint64(1_500_000_000), LamportsFromSOL(1.5))
}
