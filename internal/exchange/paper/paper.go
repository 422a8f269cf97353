// Package paper implements the gateway contract without a network: fixed
// starting balances, synthetic order identifiers, and an immediate fill the
// first time a resting order's status is queried.
package paper

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"limit-trader/internal/core"
)

type Gateway struct {
	symbol     string
	baseAsset  string
	quoteAsset string
	rules      core.Rules
	lastPrice  decimal.Decimal
	walkPct    decimal.Decimal
	rng        *rand.Rand

	balances map[string]decimal.Decimal
	open     map[string]core.Order
	filled   map[string]core.OrderReport
}

type Options struct {
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	Rules        core.Rules
	BaseBalance  decimal.Decimal
	QuoteBalance decimal.Decimal
	LastPrice    decimal.Decimal

	// WalkPct bounds the per-query random move of the synthetic market
	// as a fraction of the current price. Zero freezes the price.
	WalkPct decimal.Decimal
	// Seed fixes the walk for reproducible runs; zero seeds from the clock.
	Seed int64
}

func New(opts Options) *Gateway {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Gateway{
		symbol:     opts.Symbol,
		baseAsset:  opts.BaseAsset,
		quoteAsset: opts.QuoteAsset,
		rules:      opts.Rules,
		lastPrice:  opts.LastPrice,
		walkPct:    opts.WalkPct,
		rng:        rand.New(rand.NewSource(seed)),
		balances: map[string]decimal.Decimal{
			opts.BaseAsset:  opts.BaseBalance,
			opts.QuoteAsset: opts.QuoteBalance,
		},
		open:   make(map[string]core.Order),
		filled: make(map[string]core.OrderReport),
	}
}

func (g *Gateway) Name() string { return "paper" }

func (g *Gateway) PlaceLimitOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if order.Symbol != g.symbol {
		return core.Order{}, core.ErrInvalidOrder
	}
	if order.Qty.Cmp(decimal.Zero) <= 0 || order.Price.Cmp(decimal.Zero) <= 0 {
		return core.Order{}, core.ErrInvalidOrder
	}
	switch order.Side {
	case core.Buy:
		if order.Price.Mul(order.Qty).Cmp(g.balances[g.quoteAsset]) > 0 {
			return core.Order{}, core.ErrInsufficientBalance
		}
	case core.Sell:
		if order.Qty.Cmp(g.balances[g.baseAsset]) > 0 {
			return core.Order{}, core.ErrInsufficientBalance
		}
	default:
		return core.Order{}, core.ErrInvalidOrder
	}
	if order.TimeInForce == "" {
		order.TimeInForce = core.GTC
	}
	order.ID = "paper-" + uuid.NewString()
	order.Status = core.OrderNew
	if order.SubmittedAt.IsZero() {
		order.SubmittedAt = time.Now().UTC()
	}
	g.open[order.ID] = order
	return order, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if symbol != g.symbol {
		return core.ErrInvalidOrder
	}
	ord, ok := g.open[orderID]
	if !ok {
		return core.ErrOrderNotFound
	}
	delete(g.open, orderID)
	g.filled[orderID] = core.OrderReport{Status: core.OrderCanceled, Side: ord.Side}
	return nil
}

// QueryOrder fills any still-open order at its limit price on the first
// query, then keeps answering with the recorded terminal report.
func (g *Gateway) QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderReport, error) {
	if symbol != g.symbol {
		return core.OrderReport{}, core.ErrInvalidOrder
	}
	if report, ok := g.filled[orderID]; ok {
		return report, nil
	}
	ord, ok := g.open[orderID]
	if !ok {
		return core.OrderReport{}, core.ErrOrderNotFound
	}
	g.applyFill(ord)
	delete(g.open, orderID)
	report := core.OrderReport{
		Status:      core.OrderFilled,
		Side:        ord.Side,
		FilledPrice: ord.Price,
		FilledQty:   ord.Qty,
	}
	g.filled[orderID] = report
	return report, nil
}

func (g *Gateway) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	bal, ok := g.balances[asset]
	if !ok {
		return decimal.Zero, nil
	}
	return bal, nil
}

func (g *Gateway) LotRules(ctx context.Context, symbol string) (core.Rules, error) {
	if symbol != g.symbol {
		return core.Rules{}, core.ErrInvalidOrder
	}
	return g.rules, nil
}

// LastPrice advances the synthetic market by a bounded random step on
// every query, so the paper session sees prices that actually move.
func (g *Gateway) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol != g.symbol {
		return decimal.Zero, core.ErrInvalidOrder
	}
	if g.walkPct.Cmp(decimal.Zero) > 0 {
		step := decimal.NewFromFloat(2*g.rng.Float64() - 1).Mul(g.walkPct)
		next := g.lastPrice.Add(g.lastPrice.Mul(step))
		if next.Cmp(decimal.Zero) > 0 {
			g.lastPrice = next
		}
	}
	return g.lastPrice, nil
}

// SetLastPrice moves the synthetic market.
func (g *Gateway) SetLastPrice(price decimal.Decimal) {
	if price.Cmp(decimal.Zero) > 0 {
		g.lastPrice = price
	}
}

func (g *Gateway) applyFill(ord core.Order) {
	notional := ord.Price.Mul(ord.Qty)
	switch ord.Side {
	case core.Buy:
		g.balances[g.quoteAsset] = g.balances[g.quoteAsset].Sub(notional)
		g.balances[g.baseAsset] = g.balances[g.baseAsset].Add(ord.Qty)
	case core.Sell:
		g.balances[g.baseAsset] = g.balances[g.baseAsset].Sub(ord.Qty)
		g.balances[g.quoteAsset] = g.balances[g.quoteAsset].Add(notional)
	}
}
