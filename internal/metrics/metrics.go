// Package metrics exposes the trader's operational counters in Prometheus
// text exposition format. Registered against a caller-supplied registry and
// served at /metrics by cmd/trader when enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"limit-trader/internal/core"
)

type Metrics struct {
	ordersSubmitted *prometheus.CounterVec
	orderFills      *prometheus.CounterVec
	orderCancels    *prometheus.CounterVec
	cycleErrors     prometheus.Counter
	pendingOrders   prometheus.Gauge
	lastPrice       prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_orders_submitted_total",
				Help: "Limit orders submitted to the exchange",
			},
			[]string{"side"},
		),
		orderFills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_order_fills_total",
				Help: "Tracked orders observed filled",
			},
			[]string{"side"},
		),
		orderCancels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trader_order_cancels_total",
				Help: "Tracked orders dropped, split by reason (stale|exchange|shutdown)",
			},
			[]string{"reason"},
		),
		cycleErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trader_cycle_errors_total",
				Help: "Trading cycles aborted by a gateway error",
			},
		),
		pendingOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_pending_orders",
				Help: "Orders currently tracked as open",
			},
		),
		lastPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trader_last_price",
				Help: "Last observed traded price",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.ordersSubmitted,
			m.orderFills,
			m.orderCancels,
			m.cycleErrors,
			m.pendingOrders,
			m.lastPrice,
		)
	}
	return m
}

func (m *Metrics) OrderSubmitted(side core.Side) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) OrderFilled(side core.Side) {
	if m == nil {
		return
	}
	m.orderFills.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) OrderCanceled(reason string) {
	if m == nil {
		return
	}
	m.orderCancels.WithLabelValues(reason).Inc()
}

func (m *Metrics) CycleError() {
	if m == nil {
		return
	}
	m.cycleErrors.Inc()
}

func (m *Metrics) SetPendingOrders(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

func (m *Metrics) SetLastPrice(price float64) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
}
