package trader

import "github.com/shopspring/decimal"

// CalculateQuantity sizes an entry from available capital, flooring to a
// whole number of shares. Returns zero when the entry price is not positive.
func CalculateQuantity(capital, entryPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}

	quantity := decimal.NewFromFloat(capital).
		Div(decimal.NewFromFloat(entryPrice)).
		Floor()

	result, _ := quantity.Float64()

	return result
}
