package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"limit-trader/internal/core"
	"limit-trader/internal/signal"
	"limit-trader/internal/tracker"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeGateway struct {
	balances map[string]decimal.Decimal
	rules    core.Rules
	reports  map[string]core.OrderReport

	placed    []core.Order
	placeErr  error
	nextID    int
	cancelled []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		balances: map[string]decimal.Decimal{
			"USDT": d("1000"),
			"BTC":  d("0.5"),
		},
		rules:   core.Rules{QtyStep: d("0.001")},
		reports: make(map[string]core.OrderReport),
	}
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) PlaceLimitOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if f.placeErr != nil {
		return core.Order{}, f.placeErr
	}
	f.nextID++
	order.ID = string(rune('a' + f.nextID - 1))
	order.Status = core.OrderNew
	order.SubmittedAt = time.Now().UTC()
	f.placed = append(f.placed, order)
	return order, nil
}

func (f *fakeGateway) CancelOrder(ctx context.Context, symbol, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeGateway) QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderReport, error) {
	if report, ok := f.reports[orderID]; ok {
		return report, nil
	}
	return core.OrderReport{Status: core.OrderNew}, nil
}

func (f *fakeGateway) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return f.balances[asset], nil
}

func (f *fakeGateway) LotRules(ctx context.Context, symbol string) (core.Rules, error) {
	return f.rules, nil
}

func (f *fakeGateway) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return d("100"), nil
}

type stubSource struct {
	prices signal.Prices
	err    error
}

func (s *stubSource) CurrentSignalPrices(ctx context.Context) (signal.Prices, error) {
	return s.prices, s.err
}

func nonePrices() signal.Prices {
	return signal.Prices{
		Buy:  optional.None[decimal.Decimal](),
		Sell: optional.None[decimal.Decimal](),
	}
}

func buySignal(price string) signal.Prices {
	p := nonePrices()
	p.Buy = optional.Some(d(price))
	return p
}

func sellSignal(price string) signal.Prices {
	p := nonePrices()
	p.Sell = optional.Some(d(price))
	return p
}

func newOrchestrator(gw *fakeGateway, src signal.Source) (*Orchestrator, *tracker.Tracker) {
	tr := tracker.New(gw, tracker.Options{
		Symbol:        "BTCUSDT",
		BaseAsset:     "BTC",
		OrderTimeout:  5 * time.Minute,
		StaleDriftPct: d("0.10"),
	}, zap.NewNop())
	orch := NewOrchestrator(gw, src, tr, OrchestratorOptions{
		Symbol:          "BTCUSDT",
		BaseAsset:       "BTC",
		QuoteAsset:      "USDT",
		RiskPct:         d("0.01"),
		SafetyBufferPct: d("0.05"),
	}, zap.NewNop())
	return orch, tr
}

func TestRunCycleSubmitsBufferedBuy(t *testing.T) {
	gw := newFakeGateway()
	orch, tr := newOrchestrator(gw, &stubSource{prices: buySignal("100")})

	require.NoError(t, orch.RunCycle(context.Background()))

	require.Len(t, gw.placed, 1)
	ord := gw.placed[0]
	assert.Equal(t, core.Buy, ord.Side)
	// Signal 100 with a 5% buffer, then 1000 * 0.01 / 95 floored to the step.
	assert.True(t, ord.Price.Equal(d("95")), "got %s", ord.Price)
	assert.True(t, ord.Qty.Equal(d("0.105")), "got %s", ord.Qty)
	assert.Equal(t, core.GTC, ord.TimeInForce)
	assert.Len(t, tr.Pending(), 1)
}

func TestRunCycleNoSignalsIsQuiet(t *testing.T) {
	gw := newFakeGateway()
	orch, _ := newOrchestrator(gw, &stubSource{prices: nonePrices()})

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.Empty(t, gw.placed)
}

func TestRunCycleSubmitsSellWhileFlat(t *testing.T) {
	gw := newFakeGateway()
	orch, tr := newOrchestrator(gw, &stubSource{prices: sellSignal("100")})

	// A sell trigger with base balance on hand submits regardless of the
	// tracked position.
	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, gw.placed, 1)
	ord := gw.placed[0]
	assert.Equal(t, core.Sell, ord.Side)
	// Sell buffer pushes the limit above the signal; sizing risks a share
	// of the base asset balance.
	assert.True(t, ord.Price.Equal(d("105")), "got %s", ord.Price)
	assert.True(t, ord.Qty.Equal(d("0.005")), "got %s", ord.Qty)
	assert.True(t, tr.Position().IsFlat())
}

func TestRunCycleSubmitsBothSides(t *testing.T) {
	gw := newFakeGateway()
	prices := nonePrices()
	prices.Buy = optional.Some(d("100"))
	prices.Sell = optional.Some(d("110"))
	orch, _ := newOrchestrator(gw, &stubSource{prices: prices})

	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, gw.placed, 2)
	assert.Equal(t, core.Buy, gw.placed[0].Side)
	assert.Equal(t, core.Sell, gw.placed[1].Side)
}

func TestRunCycleZeroBalanceSkipsSide(t *testing.T) {
	gw := newFakeGateway()
	gw.balances["BTC"] = d("0")
	orch, _ := newOrchestrator(gw, &stubSource{prices: sellSignal("100")})

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.Empty(t, gw.placed)
}

func TestRunCycleReconcilesBeforeSubmitting(t *testing.T) {
	gw := newFakeGateway()
	orch, tr := newOrchestrator(gw, &stubSource{prices: sellSignal("110")})

	// The tracked buy's fill is observed in the same cycle that submits.
	tr.Track(core.Order{
		ID:          "pre",
		Symbol:      "BTCUSDT",
		Side:        core.Buy,
		Price:       d("95"),
		Qty:         d("0.1"),
		SubmittedAt: time.Now().UTC(),
	})
	gw.reports["pre"] = core.OrderReport{
		Status:      core.OrderFilled,
		Side:        core.Buy,
		FilledPrice: d("95"),
		FilledQty:   d("0.1"),
	}

	require.NoError(t, orch.RunCycle(context.Background()))
	require.Len(t, gw.placed, 1)
	assert.Equal(t, core.Sell, gw.placed[0].Side)
	assert.Equal(t, core.PositionLong, tr.Position().Side)
}

func TestRunCycleInsufficientSizeIsSilent(t *testing.T) {
	gw := newFakeGateway()
	gw.rules.MinNotional = d("100")
	orch, _ := newOrchestrator(gw, &stubSource{prices: buySignal("100")})

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.Empty(t, gw.placed)
}

func TestRunCycleRejectedOrderDoesNotAbort(t *testing.T) {
	gw := newFakeGateway()
	gw.placeErr = core.ErrInsufficientBalance
	orch, tr := newOrchestrator(gw, &stubSource{prices: buySignal("100")})

	require.NoError(t, orch.RunCycle(context.Background()))
	assert.Empty(t, tr.Pending())
}

func TestRunCyclePlaceFailurePropagates(t *testing.T) {
	gw := newFakeGateway()
	gw.placeErr = errors.New("503")
	orch, _ := newOrchestrator(gw, &stubSource{prices: buySignal("100")})

	require.Error(t, orch.RunCycle(context.Background()))
}

func TestRunCycleSignalErrorPropagates(t *testing.T) {
	gw := newFakeGateway()
	orch, _ := newOrchestrator(gw, &stubSource{err: errors.New("feed down")})

	require.Error(t, orch.RunCycle(context.Background()))
}
