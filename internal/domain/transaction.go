package domain

import "github.com/shopspring/decimal"

// Transaction types
const (
	TransactionTypeCredit = "credit"
	TransactionTypeDebit  = "debit"
)

// Transaction Model. Rows are append-only: nothing in the codebase updates
// or deletes a transaction once written.
type Transaction struct {
	ID          uint            `gorm:"primaryKey"`                                       // Primary key
	WalletID    uint            `gorm:"not null;index"`                                   // Foreign key to Wallet
	Wallet      Wallet          `gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE;"` // Owning wallet
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null"`                      // Amount, always positive
	Type        string          `gorm:"size:10;not null"`                                 // Transaction type: credit or debit
	Description string          `gorm:"size:255"`                                         // Human-readable reason
	CreatedAt   int64           `gorm:"autoCreateTime:milli"`                             // Timestamp of creation in milliseconds
}
