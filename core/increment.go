package core

import (
	"github.com/shopspring/decimal"
)

const maxStepPercent int64 = 100

var hundred = decimal.NewFromInt(100)

// RateMeetsIncrement returns true if rate beats top by more than stepPercent percent.
// The comparison is done as rate*100 > top*(100+step) so no rounding is involved.
func RateMeetsIncrement(rate, top decimal.Decimal, stepPercent int64) bool {
	scaledRate := rate.Mul(hundred)
	scaledTop := top.Mul(decimal.NewFromInt(100 + stepPercent))

	return scaledRate.GreaterThan(scaledTop)
}

// MinimumNextRate returns the threshold a new top bid has to exceed.
// An empty registry (zero top) only requires a positive rate.
func MinimumNextRate(top decimal.Decimal, stepPercent int64) decimal.Decimal {
	if !top.IsPositive() {
		return decimal.Zero
	}
	return top.Mul(decimal.NewFromInt(100 + stepPercent)).Div(hundred)
}
