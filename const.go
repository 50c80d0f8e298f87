package clob

import "github.com/shopspring/decimal"

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v1.0.0"

	// MaxOrderQuantity is the largest quantity a single order may carry.
	MaxOrderQuantity int64 = 1_000_000
)

var (
	// MinOrderPrice is the lowest admissible limit price.
	MinOrderPrice = decimal.New(1, -2) // 0.01

	// MaxOrderPrice is the highest admissible limit price.
	MaxOrderPrice = decimal.NewFromInt(1_000_000)

	// priceEpsilon is the tolerance for price equality in the cross check
	// and the fill-or-kill pre-scan. Book levels are keyed by exact price,
	// so prices closer than this still form separate levels.
	priceEpsilon = decimal.New(1, -9) // 1e-9
)

// priceEqual reports whether two prices are equal within priceEpsilon.
func priceEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(priceEpsilon)
}
