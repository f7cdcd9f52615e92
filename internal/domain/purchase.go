package domain

import "github.com/shopspring/decimal"

// Purchase request statuses. Pending is the only non-terminal state.
const (
	PurchaseStatusPending  = "pending"
	PurchaseStatusApproved = "approved"
	PurchaseStatusDeclined = "declined"
)

// PurchaseRequest Model. Amount is snapshotted from the item price at
// request time, so later price edits never change what gets debited.
type PurchaseRequest struct {
	ID        uint            `gorm:"primaryKey"`                                        // Primary key
	StudentID uint            `gorm:"not null;index"`                                    // Foreign key to the requesting student
	Student   User            `gorm:"foreignKey:StudentID;constraint:OnDelete:CASCADE;"` // Requesting student
	ItemID    uint            `gorm:"not null"`                                          // Foreign key to Item
	Item      Item            `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE;"`    // Requested item
	ClassID   uint            `gorm:"not null;index"`                                    // Foreign key to Class
	Class     Class           `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;"`   // Owning class
	Amount    decimal.Decimal `gorm:"type:decimal(10,2);not null"`                       // Price snapshot at request time
	Status    string          `gorm:"size:10;not null;default:pending"`                  // pending, approved or declined
	CreatedAt int64           `gorm:"autoCreateTime:milli"`                              // Timestamp of creation in milliseconds
}
