package core

import "github.com/shopspring/decimal"

// pricePrecision is the exchange tick convention: limit prices are quoted
// with 8 decimal places.
const pricePrecision = 8

var one = decimal.NewFromInt(1)

// DetermineOrderPrice biases a raw signal price in the trader's favor.
// Buy limits rest below the trigger so the order fills on a further dip and
// never chases the market up; sell limits rest symmetrically above it.
// Rounding is half away from zero at 8 decimal places.
func DetermineOrderPrice(signalPrice decimal.Decimal, side Side, bufferPct decimal.Decimal) decimal.Decimal {
	var adjusted decimal.Decimal
	if side == Buy {
		adjusted = signalPrice.Mul(one.Sub(bufferPct))
	} else {
		adjusted = signalPrice.Mul(one.Add(bufferPct))
	}
	return adjusted.Round(pricePrecision)
}
