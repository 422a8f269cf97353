package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter receives operationally important events: fills, stale cancels,
// runner stops.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const defaultQueueSize = 128

// Manager delivers alerts asynchronously so a slow notifier never blocks a
// trading cycle. Events beyond the queue capacity are dropped and counted.
type Manager struct {
	mode     string
	symbol   string
	notifier Notifier
	log      *zap.Logger
	queue    chan event
	stop     chan struct{}
	done     chan struct{}
	dropped  uint64

	mu     sync.RWMutex
	closed bool
}

type event struct {
	name   string
	fields map[string]string
}

func NewManager(mode, symbol string, notifier Notifier, log *zap.Logger) *Manager {
	if notifier == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		mode:     mode,
		symbol:   symbol,
		notifier: notifier,
		log:      log,
		queue:    make(chan event, defaultQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Important(name string, fields map[string]string) {
	if m == nil || m.notifier == nil {
		return
	}
	ev := event{name: name, fields: cloneFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		dropped := atomic.AddUint64(&m.dropped, 1)
		m.log.Warn("alert queue full, event dropped",
			zap.String("event", name),
			zap.Uint64("dropped_total", dropped),
		)
	}
}

// Close drains the queue, then stops the delivery goroutine.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.buildMessage(ev.name, ev.fields)); err != nil {
		m.log.Error("alert delivery failed",
			zap.String("event", ev.name),
			zap.Error(err),
		)
	}
}

func (m *Manager) buildMessage(name string, fields map[string]string) string {
	lines := []string{
		"[limit-trader] important",
		"time: " + time.Now().UTC().Format(time.RFC3339),
		"mode: " + m.mode,
		"symbol: " + m.symbol,
		"event: " + name,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
