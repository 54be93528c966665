// internal/pay/errors.go
package pay

import (
	"errors"
	"fmt"
)

// ErrReferenceNotFound means the chain has no transaction mentioning
// the reference yet. This is the dominant, expected outcome while the
// payer has not finished paying: retryable, not a failure.
var ErrReferenceNotFound = errors.New("no transaction found for reference")

// Violation reasons. A violation is terminal for the attempt but not
// for the request, which stays pending and payable.
const (
	ViolationTransactionInvalid  = "transaction-invalid"
	ViolationRecipientNotPresent = "recipient-not-present"
	ViolationTransferNotFound    = "transfer-not-found"
	ViolationReferenceNotBound   = "reference-not-bound"
	ViolationInsufficientAmount  = "insufficient-amount"
)

// ViolationError reports why a located transaction does not prove the
// contracted payment.
type ViolationError struct {
	Reason string
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("transfer verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("transfer verification failed: %s (%s)", e.Reason, e.Detail)
}

func newViolation(reason, format string, args ...interface{}) error {
	return &ViolationError{
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// AsViolation unwraps err into a ViolationError if it is one.
func AsViolation(err error) (*ViolationError, bool) {
	var violation *ViolationError
	if errors.As(err, &violation) {
		return violation, true
	}
	return nil, false
}
