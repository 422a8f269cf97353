// Package safety holds the consecutive-failure circuit breaker the runner
// wraps around trading cycles. The core itself never retries (callers own
// retry policy); the breaker bounds how long the caller keeps retrying a
// gateway that is clearly down.
package safety

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"limit-trader/internal/alert"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type Breaker struct {
	enabled     bool
	maxFailures int
	log         *zap.Logger
	alerter     alert.Alerter

	mu       sync.Mutex
	failures int
	openErr  error
}

func NewBreaker(enabled bool, maxFailures int, log *zap.Logger) *Breaker {
	if log == nil {
		log = zap.NewNop()
	}
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		enabled:     enabled,
		maxFailures: maxFailures,
		log:         log,
	}
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

// Record counts a cycle outcome. A nil error closes the circuit again; a
// non-nil error increments the consecutive-failure count and trips the
// circuit once the limit is reached. The returned error is non-nil exactly
// when the circuit is open.
func (b *Breaker) Record(err error) error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		b.openErr = nil
		return nil
	}
	b.failures++
	if b.failures < b.maxFailures {
		return nil
	}
	if b.openErr == nil {
		b.openErr = fmt.Errorf("%w: %d consecutive cycle failures, last: %v", ErrCircuitOpen, b.failures, err)
		b.log.Error("circuit breaker tripped",
			zap.Int("consecutive_failures", b.failures),
			zap.Error(err),
		)
		if b.alerter != nil {
			b.alerter.Important("circuit_open", map[string]string{
				"consecutive_failures": fmt.Sprintf("%d", b.failures),
				"last_error":           err.Error(),
			})
		}
	}
	return b.openErr
}

func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openErr = nil
}
