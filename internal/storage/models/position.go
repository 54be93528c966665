// internal/storage/models/position.go
package models

import "time"

// Position status. "sold" is terminal.
const (
	PositionStatusOpen = "open"
	PositionStatusSold = "sold"
)

// Position is an opened trade tracked for auto-sell. BuyAmount is in
// whole tokens, EntryPrice is the quote price at open.
type Position struct {
	ID          string     `gorm:"primarykey;type:varchar(36)"`
	OwnerWallet string     `gorm:"index;not null;type:varchar(44)"`
	TokenMint   string     `gorm:"index;not null;type:varchar(44)"`
	BuyAmount   float64    `gorm:"type:decimal(20,9);not null"`
	EntryPrice  float64    `gorm:"type:decimal(20,9);not null"`
	Status      string     `gorm:"index;not null;type:varchar(20);default:open"`
	ProfitPct   *float64   `gorm:"type:decimal(20,9)"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	SoldAt      *time.Time ``
}
