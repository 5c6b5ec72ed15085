package model

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("amount must be an integer within the signed 128-bit range")

var (
	// MaxAmount is 2^127-1.
	MaxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)
	// MinAmount is -2^127.
	MinAmount = decimal.NewFromBigInt(new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127)), 0)
)

// IsValidAmount reports whether d is an integer that fits a signed 128-bit value.
func IsValidAmount(d decimal.Decimal) bool {
	if !d.IsInteger() {
		return false
	}
	return d.GreaterThanOrEqual(MinAmount) && d.LessThanOrEqual(MaxAmount)
}

// NormalizeAmount validates d and returns it with a zero exponent so that
// equal amounts always encode the same way.
func NormalizeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if !IsValidAmount(d) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Truncate(0), nil
}
