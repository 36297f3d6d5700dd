// Package money centralizes the arbitrary-precision decimal arithmetic used
// across the kernel. Binary floating point never appears in position, P&L,
// or price computations (spec.md §9 forbids it).
package money

import "github.com/shopspring/decimal"

// Zero is the canonical zero decimal, reused to avoid repeated allocation.
var Zero = decimal.Zero

// Sign returns -1, 0, or 1 the way math.Signbit style helpers do for ints,
// but for a decimal. Used throughout position-ledger sign comparisons.
func Sign(d decimal.Decimal) int {
	return d.Sign()
}

// SameSign reports whether a and b are both positive, both negative, or
// both zero; zero and a non-zero value are not the same sign.
func SameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}

// WeightedAverage computes (aQty*aPrice + bQty*bPrice) / (aQty+bQty),
// returning zero when aQty+bQty is zero.
func WeightedAverage(aQty, aPrice, bQty, bPrice decimal.Decimal) decimal.Decimal {
	total := aQty.Add(bQty)
	if total.IsZero() {
		return decimal.Zero
	}
	num := aQty.Mul(aPrice).Add(bQty.Mul(bPrice))
	return num.Div(total)
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
