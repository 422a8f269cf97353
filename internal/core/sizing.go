package core

import "github.com/shopspring/decimal"

// CalculateQuantity converts available balance into a tradeable quantity.
// Buys spend the quote balance at the given price; sells spend the base
// balance directly. The result is always rounded down to the lot step, so
// the exchange never rejects for precision and the order never commits more
// than the available balance.
//
// Returns ErrInsufficientSize when the rounded quantity is zero or its
// notional falls below the exchange minimum.
func CalculateQuantity(price decimal.Decimal, side Side, balance, riskPct decimal.Decimal, rules Rules) (decimal.Decimal, error) {
	if price.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ErrInvalidOrder
	}
	var qty decimal.Decimal
	switch side {
	case Buy:
		qty = balance.Mul(riskPct).Div(price)
	case Sell:
		qty = balance.Mul(riskPct)
	default:
		return decimal.Zero, ErrInvalidOrder
	}
	qty = RoundDown(qty, rules.QtyStep)
	if qty.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, ErrInsufficientSize
	}
	if rules.MinQty.Cmp(decimal.Zero) > 0 && qty.Cmp(rules.MinQty) < 0 {
		return decimal.Zero, ErrInsufficientSize
	}
	if rules.MinNotional.Cmp(decimal.Zero) > 0 && qty.Mul(price).Cmp(rules.MinNotional) < 0 {
		return decimal.Zero, ErrInsufficientSize
	}
	return qty, nil
}

// RoundDown truncates value to an exact multiple of step. A non-positive
// step leaves the value untouched.
func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
