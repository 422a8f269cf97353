package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"limit-trader/internal/core"
)

// Gateway is the exchange surface the trader consumes. Every call is a
// blocking network round-trip; adapters own the per-call timeout.
type Gateway interface {
	Name() string
	PlaceLimitOrder(ctx context.Context, order core.Order) (core.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderReport, error)
	AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	LotRules(ctx context.Context, symbol string) (core.Rules, error)
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
