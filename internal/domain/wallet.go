package domain

import "github.com/shopspring/decimal"

// Wallet Model. One wallet per (owner, class) pair, created lazily when a
// student joins a class or receives the first credit.
type Wallet struct {
	ID      uint            `gorm:"primaryKey"`                                            // Primary key
	OwnerID uint            `gorm:"not null;uniqueIndex:idx_wallet_owner_class"`           // Foreign key to User
	ClassID uint            `gorm:"not null;uniqueIndex:idx_wallet_owner_class"`           // Foreign key to Class
	Owner   User            `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE;"`       // Owning user
	Class   Class           `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;"`       // Owning class
	Balance decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`                 // Current balance, never negative
}
