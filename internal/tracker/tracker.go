// Package tracker owns the set of open orders from submission until a
// terminal status, and the position state derived from fills. It is the only
// component allowed to mutate either.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-trader/internal/alert"
	"limit-trader/internal/core"
	"limit-trader/internal/exchange"
	"limit-trader/internal/metrics"
	"limit-trader/internal/store"
)

const (
	cancelReasonStale    = "stale"
	cancelReasonExchange = "exchange"
	cancelReasonShutdown = "shutdown"
)

type Options struct {
	Symbol    string
	BaseAsset string
	// OrderTimeout and StaleDriftPct together decide when a resting order is
	// abandoned: both must be exceeded.
	OrderTimeout  time.Duration
	StaleDriftPct decimal.Decimal
	// DropOnCancelFailure keeps the source behavior: a failed cancel still
	// drops local tracking, accepting that the order may stay live on the
	// exchange. Disable to keep retrying the cancel on later passes.
	DropOnCancelFailure bool

	Store   store.Persister
	Alerts  alert.Alerter
	Metrics *metrics.Metrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Tracker struct {
	gateway exchange.Gateway
	log     *zap.Logger
	opts    Options

	pending  map[string]core.Order
	position core.Position
	now      func() time.Time
}

func New(gateway exchange.Gateway, opts Options, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{
		gateway:  gateway,
		log:      log,
		opts:     opts,
		pending:  make(map[string]core.Order),
		position: core.Flat(),
		now:      now,
	}
}

// Track takes ownership of a freshly submitted order.
func (t *Tracker) Track(order core.Order) {
	if order.ID == "" {
		return
	}
	order.Status = core.OrderNew
	if order.SubmittedAt.IsZero() {
		order.SubmittedAt = t.now()
	}
	t.pending[order.ID] = order
	t.log.Info("order tracked",
		zap.String("order_id", order.ID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.String("qty", order.Qty.String()),
	)
	t.opts.Metrics.SetPendingOrders(len(t.pending))
	t.persist()
}

// Restore reloads a persisted registry and position after a restart.
func (t *Tracker) Restore(orders []core.Order, position core.Position) {
	for _, ord := range orders {
		if ord.ID == "" || ord.Status != core.OrderNew {
			continue
		}
		t.pending[ord.ID] = ord
	}
	if position.Side == core.PositionLong {
		t.position = position
	}
	t.opts.Metrics.SetPendingOrders(len(t.pending))
}

func (t *Tracker) Position() core.Position {
	return t.position
}

func (t *Tracker) Pending() []core.Order {
	orders := make([]core.Order, 0, len(t.pending))
	for _, ord := range t.pending {
		orders = append(orders, ord)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders
}

// Reconcile resolves the fate of every tracked order exactly once per pass:
// filled orders update the position and leave the registry, stale orders are
// cancelled, everything else stays untouched. Re-running against an empty or
// already-reconciled registry is a no-op.
func (t *Tracker) Reconcile(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	lastPrice, err := t.gateway.LastPrice(ctx, t.opts.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile: last price: %w", err)
	}
	t.opts.Metrics.SetLastPrice(lastPrice.InexactFloat64())

	changed := false
	for _, id := range t.pendingIDs() {
		ord, ok := t.pending[id]
		if !ok {
			continue
		}
		report, err := t.gateway.QueryOrder(ctx, t.opts.Symbol, id)
		if err != nil {
			if errors.Is(err, core.ErrOrderNotFound) {
				// The exchange no longer knows the order; nothing left to track.
				t.log.Warn("tracked order unknown to exchange, dropping",
					zap.String("order_id", id),
				)
				delete(t.pending, id)
				t.opts.Metrics.OrderCanceled(cancelReasonExchange)
				changed = true
				continue
			}
			if changed {
				t.finishPass()
			}
			return fmt.Errorf("reconcile: query order %s: %w", id, err)
		}
		switch {
		case report.Status == core.OrderFilled:
			t.applyFill(ord, report)
			delete(t.pending, id)
			changed = true
		case report.Status.Terminal():
			t.log.Info("order closed on exchange",
				zap.String("order_id", id),
				zap.String("status", string(report.Status)),
				zap.String("side", string(ord.Side)),
			)
			delete(t.pending, id)
			t.opts.Metrics.OrderCanceled(cancelReasonExchange)
			changed = true
		default:
			if t.isStale(ord, lastPrice) {
				if t.cancelStale(ctx, ord, lastPrice) {
					delete(t.pending, id)
					t.opts.Metrics.OrderCanceled(cancelReasonStale)
					changed = true
				}
			}
		}
	}
	if changed {
		t.finishPass()
	}
	return nil
}

// CancelAll best-effort cancels every tracked order, used on shutdown.
func (t *Tracker) CancelAll(ctx context.Context) {
	for _, id := range t.pendingIDs() {
		ord := t.pending[id]
		if err := t.gateway.CancelOrder(ctx, t.opts.Symbol, id); err != nil && !errors.Is(err, core.ErrOrderNotFound) {
			t.log.Error("shutdown cancel failed",
				zap.String("order_id", id),
				zap.String("side", string(ord.Side)),
				zap.Error(err),
			)
		} else {
			t.log.Info("order cancelled on shutdown",
				zap.String("order_id", id),
				zap.String("side", string(ord.Side)),
				zap.String("price", ord.Price.String()),
				zap.String("qty", ord.Qty.String()),
			)
		}
		delete(t.pending, id)
		t.opts.Metrics.OrderCanceled(cancelReasonShutdown)
	}
	t.finishPass()
}

func (t *Tracker) applyFill(ord core.Order, report core.OrderReport) {
	fillPrice := report.FilledPrice
	if fillPrice.Cmp(decimal.Zero) <= 0 {
		fillPrice = ord.Price
	}
	fillQty := report.FilledQty
	if fillQty.Cmp(decimal.Zero) <= 0 {
		fillQty = ord.Qty
	}
	switch ord.Side {
	case core.Buy:
		t.position = core.Long(fillPrice, fillQty, t.opts.BaseAsset)
	case core.Sell:
		t.position = core.Flat()
	}
	t.log.Info("order filled",
		zap.String("order_id", ord.ID),
		zap.String("side", string(ord.Side)),
		zap.String("fill_price", fillPrice.String()),
		zap.String("fill_qty", fillQty.String()),
		zap.String("position", string(t.position.Side)),
	)
	t.opts.Metrics.OrderFilled(ord.Side)
	if t.opts.Alerts != nil {
		t.opts.Alerts.Important("order_filled", map[string]string{
			"order_id": ord.ID,
			"side":     string(ord.Side),
			"price":    fillPrice.String(),
			"qty":      fillQty.String(),
		})
	}
}

func (t *Tracker) isStale(ord core.Order, lastPrice decimal.Decimal) bool {
	if t.opts.OrderTimeout <= 0 {
		return false
	}
	if t.now().Sub(ord.SubmittedAt) <= t.opts.OrderTimeout {
		return false
	}
	if ord.Price.Cmp(decimal.Zero) <= 0 {
		return false
	}
	drift := lastPrice.Sub(ord.Price).Abs().Div(ord.Price)
	return drift.Cmp(t.opts.StaleDriftPct) > 0
}

// cancelStale reports whether the order should leave the registry.
func (t *Tracker) cancelStale(ctx context.Context, ord core.Order, lastPrice decimal.Decimal) bool {
	err := t.gateway.CancelOrder(ctx, t.opts.Symbol, ord.ID)
	if err == nil || errors.Is(err, core.ErrOrderNotFound) {
		t.log.Info("stale order cancelled",
			zap.String("order_id", ord.ID),
			zap.String("side", string(ord.Side)),
			zap.String("order_price", ord.Price.String()),
			zap.String("qty", ord.Qty.String()),
			zap.String("last_price", lastPrice.String()),
		)
		if t.opts.Alerts != nil {
			t.opts.Alerts.Important("stale_order_canceled", map[string]string{
				"order_id":    ord.ID,
				"side":        string(ord.Side),
				"order_price": ord.Price.String(),
				"last_price":  lastPrice.String(),
			})
		}
		return true
	}
	// The order may have filled server-side between the status check and the
	// cancel. Dropping it anyway can desynchronize local and exchange state.
	t.log.Error("stale order cancel failed",
		zap.String("order_id", ord.ID),
		zap.String("side", string(ord.Side)),
		zap.Bool("dropping_local_tracking", t.opts.DropOnCancelFailure),
		zap.Error(err),
	)
	if t.opts.Alerts != nil {
		t.opts.Alerts.Important("stale_cancel_failed", map[string]string{
			"order_id": ord.ID,
			"side":     string(ord.Side),
			"dropped":  fmt.Sprintf("%t", t.opts.DropOnCancelFailure),
			"err":      err.Error(),
		})
	}
	return t.opts.DropOnCancelFailure
}

func (t *Tracker) pendingIDs() []string {
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) finishPass() {
	t.opts.Metrics.SetPendingOrders(len(t.pending))
	t.persist()
}

func (t *Tracker) persist() {
	if t.opts.Store == nil {
		return
	}
	snapshot := store.Snapshot{
		Symbol:   t.opts.Symbol,
		Position: t.position,
		Orders:   t.Pending(),
	}
	if err := t.opts.Store.SaveSnapshot(snapshot); err != nil {
		t.log.Warn("snapshot write failed", zap.Error(err))
	}
}
