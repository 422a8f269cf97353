// Package engine drives the trading loop: each cycle reconciles open orders,
// asks the signal source for actionable prices, and submits sized limit
// orders through the exchange gateway.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-trader/internal/core"
	"limit-trader/internal/exchange"
	"limit-trader/internal/metrics"
	"limit-trader/internal/signal"
	"limit-trader/internal/tracker"
)

type OrchestratorOptions struct {
	Symbol          string
	BaseAsset       string
	QuoteAsset      string
	RiskPct         decimal.Decimal
	SafetyBufferPct decimal.Decimal

	Metrics *metrics.Metrics
}

type Orchestrator struct {
	gateway exchange.Gateway
	signals signal.Source
	tracker *tracker.Tracker
	log     *zap.Logger
	opts    OrchestratorOptions

	rules    core.Rules
	hasRules bool
}

func NewOrchestrator(gateway exchange.Gateway, signals signal.Source, tr *tracker.Tracker, opts OrchestratorOptions, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		gateway: gateway,
		signals: signals,
		tracker: tr,
		log:     log,
		opts:    opts,
	}
}

// RunCycle performs one pass of the trading loop. Order state is reconciled
// before signals are read so sizing sees post-fill balances.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if err := o.tracker.Reconcile(ctx); err != nil {
		return fmt.Errorf("cycle: %w", err)
	}

	prices, err := o.signals.CurrentSignalPrices(ctx)
	if err != nil {
		return fmt.Errorf("cycle: signals: %w", err)
	}
	if prices.Buy.IsNone() && prices.Sell.IsNone() {
		return nil
	}

	// A trigger plus a sizeable balance is the whole submission condition;
	// zero balances fall out through ErrInsufficientSize below.
	if prices.Buy.IsSome() {
		if err := o.submit(ctx, core.Buy, prices.Buy.Unwrap()); err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
	}
	if prices.Sell.IsSome() {
		if err := o.submit(ctx, core.Sell, prices.Sell.Unwrap()); err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) submit(ctx context.Context, side core.Side, signalPrice decimal.Decimal) error {
	price := core.DetermineOrderPrice(signalPrice, side, o.opts.SafetyBufferPct)

	rules, err := o.lotRules(ctx)
	if err != nil {
		return err
	}
	// Balances are read immediately before sizing, never cached across cycles.
	balance, err := o.freshBalance(ctx, side)
	if err != nil {
		return err
	}
	qty, err := core.CalculateQuantity(price, side, balance, o.opts.RiskPct, rules)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientSize) {
			o.log.Debug("order skipped, size below exchange minimum",
				zap.String("side", string(side)),
				zap.String("price", price.String()),
				zap.String("balance", balance.String()),
			)
			return nil
		}
		return fmt.Errorf("size %s order: %w", side, err)
	}

	order := core.Order{
		Symbol:      o.opts.Symbol,
		Side:        side,
		Price:       price,
		Qty:         qty,
		TimeInForce: core.GTC,
	}
	placed, err := o.gateway.PlaceLimitOrder(ctx, order)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientBalance) || errors.Is(err, core.ErrOrderRejected) {
			o.log.Warn("order rejected by exchange",
				zap.String("side", string(side)),
				zap.String("price", price.String()),
				zap.String("qty", qty.String()),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("place %s order: %w", side, err)
	}
	o.opts.Metrics.OrderSubmitted(side)
	o.log.Info("order submitted",
		zap.String("order_id", placed.ID),
		zap.String("side", string(side)),
		zap.String("signal_price", signalPrice.String()),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()),
	)
	o.tracker.Track(placed)
	return nil
}

func (o *Orchestrator) freshBalance(ctx context.Context, side core.Side) (decimal.Decimal, error) {
	asset := o.opts.QuoteAsset
	if side == core.Sell {
		asset = o.opts.BaseAsset
	}
	balance, err := o.gateway.AssetBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", asset, err)
	}
	return balance, nil
}

func (o *Orchestrator) lotRules(ctx context.Context) (core.Rules, error) {
	if o.hasRules {
		return o.rules, nil
	}
	rules, err := o.gateway.LotRules(ctx, o.opts.Symbol)
	if err != nil {
		return core.Rules{}, fmt.Errorf("lot rules %s: %w", o.opts.Symbol, err)
	}
	o.rules = rules
	o.hasRules = true
	return rules, nil
}
