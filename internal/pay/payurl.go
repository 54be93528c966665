// internal/pay/payurl.go
package pay

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gagliardetto/solana-go"
)

// TransferRequestParams describes a Solana Pay transfer-request URL of
// the form solana:<recipient>?amount=..&reference=..&label=..&message=..&memo=..
type TransferRequestParams struct {
	Recipient solana.PublicKey
	Amount    float64
	Reference solana.PublicKey
	Label     string
	Message   string
	Memo      string
}

// EncodeTransferRequestURL renders the wallet-facing payment URL. The
// amount is in whole SOL with insignificant zeros trimmed, as wallets
// expect.
func EncodeTransferRequestURL(params TransferRequestParams) string {
	query := url.Values{}
	query.Set("amount", strconv.FormatFloat(params.Amount, 'f', -1, 64))
	query.Set("reference", params.Reference.String())
	if params.Label != "" {
		query.Set("label", params.Label)
	}
	if params.Message != "" {
		query.Set("message", params.Message)
	}
	if params.Memo != "" {
		query.Set("memo", params.Memo)
	}
	return fmt.Sprintf("solana:%s?%s", params.Recipient.String(), query.Encode())
}
