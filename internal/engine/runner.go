package engine

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"limit-trader/internal/alert"
	"limit-trader/internal/exchange"
	"limit-trader/internal/metrics"
	"limit-trader/internal/safety"
	"limit-trader/internal/signal"
	"limit-trader/internal/store"
	"limit-trader/internal/tracker"
)

const shutdownCancelTimeout = 10 * time.Second

type Runner struct {
	Orchestrator *Orchestrator
	Tracker      *tracker.Tracker
	Gateway      exchange.Gateway
	// Observer, when set, is fed the latest REST price before every cycle.
	// Leave nil when a websocket stream feeds the signal source instead.
	Observer signal.Observer
	Interval time.Duration
	Mode     string
	Symbol   string
	Breaker  *safety.Breaker
	Store    *store.Store
	Metrics  *metrics.Metrics
	Alerts   alert.Alerter
	Log      *zap.Logger
}

// Run polls on Interval until the context is cancelled, then cancels every
// tracked order best-effort before returning.
func (r *Runner) Run(ctx context.Context) error {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	startedAt := time.Now().UTC()
	r.persistRuntimeStatus("running", startedAt, nil)

	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	maxWait := 10 * interval
	wait := interval

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown(log, startedAt, "stopped", nil)
			return ctx.Err()
		case <-timer.C:
		}

		err := r.cycle(ctx)
		if ctx.Err() != nil {
			r.shutdown(log, startedAt, "stopped", nil)
			return ctx.Err()
		}
		if r.Breaker != nil {
			if trip := r.Breaker.Record(err); errors.Is(trip, safety.ErrCircuitOpen) {
				log.Error("trading halted, manual intervention required", zap.Error(trip))
				if r.Alerts != nil {
					r.Alerts.Important("runner_stopped", map[string]string{
						"reason": trip.Error(),
					})
				}
				r.shutdown(log, startedAt, "halted", trip)
				return trip
			}
		}
		if err != nil {
			r.Metrics.CycleError()
			log.Error("trading cycle failed", zap.Error(err))
			wait = wait * 2
			if wait > maxWait {
				wait = maxWait
			}
			r.persistRuntimeStatus("degraded", startedAt, err)
		} else {
			wait = interval
			r.persistRuntimeStatus("running", startedAt, nil)
		}
		timer.Reset(wait)
	}
}

func (r *Runner) cycle(ctx context.Context) error {
	if r.Observer != nil {
		price, err := r.Gateway.LastPrice(ctx, r.Symbol)
		if err != nil {
			return err
		}
		r.Observer.Observe(price, time.Now().UTC())
		r.Metrics.SetLastPrice(price.InexactFloat64())
	}
	return r.Orchestrator.RunCycle(ctx)
}

func (r *Runner) shutdown(log *zap.Logger, startedAt time.Time, state string, cause error) {
	log.Info("shutting down, cancelling open orders",
		zap.Int("pending", len(r.Tracker.Pending())),
	)
	cancelCtx, cancel := context.WithTimeout(context.Background(), shutdownCancelTimeout)
	defer cancel()
	r.Tracker.CancelAll(cancelCtx)
	r.persistRuntimeStatus(state, startedAt, cause)
}

func (r *Runner) persistRuntimeStatus(state string, startedAt time.Time, cause error) {
	if r.Store == nil {
		return
	}
	status := store.RuntimeStatus{
		Mode:      r.Mode,
		Symbol:    r.Symbol,
		PID:       os.Getpid(),
		State:     state,
		StartedAt: startedAt,
		UpdatedAt: time.Now().UTC(),
	}
	if cause != nil {
		status.LastError = cause.Error()
	}
	_ = r.Store.SaveRuntimeStatus(status)
}
