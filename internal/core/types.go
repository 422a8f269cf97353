package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderStatus string

type TimeInForce string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// GTC is the only time-in-force the trader submits: orders rest until
// filled or explicitly cancelled.
const GTC TimeInForce = "GTC"

// Terminal reports whether the status can no longer change on the exchange.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	}
	return false
}

type Order struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id,omitempty"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	TimeInForce TimeInForce     `json:"time_in_force,omitempty"`
	Status      OrderStatus     `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// OrderReport is the answer to a status query for a single order.
type OrderReport struct {
	Status      OrderStatus
	Side        Side
	FilledPrice decimal.Decimal
	FilledQty   decimal.Decimal
}

// Rules carries the exchange lot-size filter for a symbol.
type Rules struct {
	QtyStep     decimal.Decimal `json:"qty_step"`
	MinQty      decimal.Decimal `json:"min_qty"`
	MinNotional decimal.Decimal `json:"min_notional"`
}
