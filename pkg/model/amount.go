package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the number of decimal places every amount and price is quantized to.
// Matches the largest common ERC-20 precision.
const AmountPrecision int32 = 18

var ulp = decimal.New(1, -AmountPrecision)

// DivFloor returns a/b rounded down to AmountPrecision places. Both operands must be positive.
func DivFloor(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, AmountPrecision)
	return q
}

// DivCeil returns a/b rounded up to AmountPrecision places. Both operands must be positive.
func DivCeil(a, b decimal.Decimal) decimal.Decimal {
	q, r := a.QuoRem(b, AmountPrecision)
	if !r.IsZero() {
		q = q.Add(ulp)
	}
	return q
}

// DivRound returns a/b rounded half away from zero to AmountPrecision places.
func DivRound(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, AmountPrecision)
}

// NormalizeAmount converts a raw integer amount in the token's smallest unit
// into a decimal amount of whole tokens.
func NormalizeAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Slippage returns (expected-actual)/expected. ok is false when expected is zero.
func Slippage(expected, actual decimal.Decimal) (decimal.Decimal, bool) {
	if expected.IsZero() {
		return decimal.Zero, false
	}
	return DivRound(expected.Sub(actual), expected), true
}
