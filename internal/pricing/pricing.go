// Package pricing maps token quantities to tiered unit prices.
//
// Prices are expressed in whole currency units; conversion to processor
// minor units (cents) happens at the Stripe boundary.
package pricing

import "math"

// Volume tier thresholds in tokens.
const (
	TierSmall  = 50
	TierMedium = 100
	TierLarge  = 150
)

// BasePrice is the undiscounted per-token price below the first tier.
const BasePrice int64 = 8

// UnitPrice returns the per-token price for the given quantity.
// It is monotonically non-increasing in quantity.
func UnitPrice(quantity int64) int64 {
	switch {
	case quantity >= TierLarge:
		return 5
	case quantity >= TierMedium:
		return 6
	case quantity >= TierSmall:
		return 7
	default:
		return BasePrice
	}
}

// TotalPrice returns the full price for the given quantity at its tier.
func TotalPrice(quantity int64) int64 {
	return quantity * UnitPrice(quantity)
}

// DiscountPercent returns the tier discount relative to the base price,
// rounded to the nearest integer percent.
func DiscountPercent(quantity int64) int {
	unit := UnitPrice(quantity)
	if unit >= BasePrice {
		return 0
	}
	return int(math.Round(float64(BasePrice-unit) / float64(BasePrice) * 100))
}
