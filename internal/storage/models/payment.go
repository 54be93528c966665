// internal/storage/models/payment.go
package models

import "time"

// Payment request lifecycle. Transitions are monotonic:
// pending -> confirmed -> delivered.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusDelivered = "delivered"
)

// PaymentRequest is one paid-content unlock. Reference is a single-use
// public key generated at creation; it is the only handle correlating
// the record with an on-chain transfer.
type PaymentRequest struct {
	ID            string     `gorm:"primarykey;type:varchar(36)"`
	SubjectID     string     `gorm:"index;not null;type:varchar(255)"`
	Reference     string     `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Amount        float64    `gorm:"type:decimal(20,9);not null"`
	Status        string     `gorm:"index;not null;type:varchar(20);default:pending"`
	TxSignature   string     `gorm:"type:varchar(88)"`
	ResultPayload string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	ConfirmedAt   *time.Time ``
	DeliveredAt   *time.Time ``
}

// Paid reports whether the on-chain payment has been accepted.
func (p *PaymentRequest) Paid() bool {
	return p.Status == PaymentStatusConfirmed || p.Status == PaymentStatusDelivered
}

// RevenueSummary aggregates paid requests.
type RevenueSummary struct {
	Count       int64   `json:"count"`
	TotalAmount float64 `json:"totalAmount"`
}
