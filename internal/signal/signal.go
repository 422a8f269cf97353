// Package signal defines where trigger prices come from. The trader only
// depends on the Source capability; how triggers are produced (indicators,
// webhooks, humans) is somebody else's problem.
package signal

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Prices carries at most one trigger per side for the current cycle.
type Prices struct {
	Buy  optional.Option[decimal.Decimal]
	Sell optional.Option[decimal.Decimal]
}

type Source interface {
	CurrentSignalPrices(ctx context.Context) (Prices, error)
}

// Observer is implemented by sources that build their view from a live
// price feed.
type Observer interface {
	Observe(price decimal.Decimal, at time.Time)
}
