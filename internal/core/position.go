package core

import "github.com/shopspring/decimal"

type PositionSide string

const (
	PositionFlat PositionSide = "FLAT"
	PositionLong PositionSide = "LONG"
)

// Position is a tagged record of the current holding. Entry price, quantity
// and asset are only meaningful while Side is PositionLong.
type Position struct {
	Side       PositionSide    `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price,omitempty"`
	Qty        decimal.Decimal `json:"qty,omitempty"`
	Asset      string          `json:"asset,omitempty"`
}

func Flat() Position {
	return Position{Side: PositionFlat}
}

func Long(entryPrice, qty decimal.Decimal, asset string) Position {
	return Position{
		Side:       PositionLong,
		EntryPrice: entryPrice,
		Qty:        qty,
		Asset:      asset,
	}
}

func (p Position) IsFlat() bool {
	return p.Side != PositionLong
}
