package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"limit-trader/internal/core"
	"limit-trader/internal/safety"
)

func TestRunnerCancelsOpenOrdersOnShutdown(t *testing.T) {
	gw := newFakeGateway()
	orch, tr := newOrchestrator(gw, &stubSource{prices: nonePrices()})
	tr.Track(core.Order{
		ID:          "open-1",
		Symbol:      "BTCUSDT",
		Side:        core.Buy,
		Price:       d("95"),
		Qty:         d("0.1"),
		SubmittedAt: time.Now().UTC(),
	})

	r := &Runner{
		Orchestrator: orch,
		Tracker:      tr,
		Gateway:      gw,
		Interval:     time.Hour,
		Mode:         "paper",
		Symbol:       "BTCUSDT",
		Log:          zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	// Let the first cycle fire, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Contains(t, gw.cancelled, "open-1")
	assert.Empty(t, tr.Pending())
}

func TestRunnerHaltsWhenCircuitOpens(t *testing.T) {
	gw := newFakeGateway()
	orch, tr := newOrchestrator(gw, &stubSource{err: errors.New("feed down")})

	r := &Runner{
		Orchestrator: orch,
		Tracker:      tr,
		Gateway:      gw,
		Interval:     time.Millisecond,
		Mode:         "paper",
		Symbol:       "BTCUSDT",
		Breaker:      safety.NewBreaker(true, 2, nil),
		Log:          zap.NewNop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, safety.ErrCircuitOpen)
}
