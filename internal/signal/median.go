package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// MedianReversion keeps a bounded window of observed prices and triggers
// when the latest price strays a configured percentage from the window
// median: a dip below triggers a buy, a spike above triggers a sell. The
// trigger price is the current price itself; the order price adjuster
// applies its own buffer downstream.
//
// Observe runs on the ticker stream goroutine while CurrentSignalPrices
// runs on the cycle loop, so both take the mutex.
type MedianReversion struct {
	mu        sync.Mutex
	window    int
	threshold decimal.Decimal
	prices    []decimal.Decimal
	last      decimal.Decimal
}

func NewMedianReversion(window int, threshold decimal.Decimal) *MedianReversion {
	if window < 2 {
		window = 2
	}
	return &MedianReversion{
		window:    window,
		threshold: threshold,
		prices:    make([]decimal.Decimal, 0, window),
	}
}

func (m *MedianReversion) Observe(price decimal.Decimal, at time.Time) {
	if price.Cmp(decimal.Zero) <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = price
	m.prices = append(m.prices, price)
	if len(m.prices) > m.window {
		m.prices = m.prices[len(m.prices)-m.window:]
	}
}

func (m *MedianReversion) CurrentSignalPrices(ctx context.Context) (Prices, error) {
	prices := Prices{
		Buy:  optional.None[decimal.Decimal](),
		Sell: optional.None[decimal.Decimal](),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prices) < m.window {
		return prices, nil
	}
	med := median(m.prices)
	buyThreshold := med.Mul(one.Sub(m.threshold))
	sellThreshold := med.Mul(one.Add(m.threshold))
	if m.last.Cmp(buyThreshold) <= 0 {
		prices.Buy = optional.Some(m.last)
	} else if m.last.Cmp(sellThreshold) >= 0 {
		prices.Sell = optional.Some(m.last)
	}
	return prices, nil
}

var one = decimal.NewFromInt(1)

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two)
}
