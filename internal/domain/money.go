package domain

import "github.com/shopspring/decimal"

// MaxQuantity bounds the share count of a single order, offer or
// issuance bet.
const MaxQuantity uint64 = 1_000_000_000

// Cost returns price × shares.
func Cost(price decimal.Decimal, shares uint64) decimal.Decimal {
	return price.Mul(decimal.NewFromUint64(shares))
}
