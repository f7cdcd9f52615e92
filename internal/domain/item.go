package domain

import "github.com/shopspring/decimal"

// Item Model. A purchasable item in a class catalog.
type Item struct {
	ID          uint            `gorm:"primaryKey"`                                      // Primary key
	ClassID     uint            `gorm:"not null;index"`                                  // Foreign key to Class
	Class       Class           `gorm:"foreignKey:ClassID;constraint:OnDelete:CASCADE;"` // Owning class
	Name        string          `gorm:"size:100;not null"`                               // Display name
	Description string          `gorm:"size:255"`                                        // Optional description
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`                     // Price in class currency
	ImageURL    string          `gorm:"size:255"`                                        // Optional image link
	CreatedAt   int64           `gorm:"autoCreateTime:milli"`                            // Timestamp of creation in milliseconds
}
