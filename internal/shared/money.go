package shared

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative, malformed or over-precise amounts.
var ErrInvalidAmount = errors.New("amount must be a non-negative number with at most 2 decimals")

// Cents is the scale every stored amount is kept at.
const Cents = 2

// RoundCents rounds d half away from zero to two decimals.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(Cents)
}

// ValidAmount reports whether d is non-negative and carries at most two decimals.
func ValidAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(Cents))
}

// ParseAmount parses user typed money. Blank input is zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.Exponent() < -Cents || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Extension is quantity times unit price, rounded to cents.
func Extension(qty int, price decimal.Decimal) decimal.Decimal {
	return RoundCents(price.Mul(decimal.NewFromInt(int64(qty))))
}
