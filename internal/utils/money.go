package utils

import (
	"errors" // Error values

	"github.com/shopspring/decimal" // Fixed-point decimal arithmetic
)

// ErrInvalidAmount is returned for amounts that are not positive decimals
// with at most two fractional digits.
var ErrInvalidAmount = errors.New("amount must be a positive decimal with at most 2 decimal places")

// ParseAmount parses a monetary amount from its string form and validates
// it. Monetary values never pass through floating point.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks that an amount is positive and scaled to at most
// two fractional digits.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	// Reject sub-cent precision: 10.005 is not a valid amount
	if !d.Equal(d.Round(2)) {
		return ErrInvalidAmount
	}
	return nil
}
