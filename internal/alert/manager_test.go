package alert

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureNotifier) Notify(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureNotifier) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func TestManagerDeliversImportantEvents(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager("paper", "BTCUSDT", notifier, nil)
	require.NotNil(t, m)

	m.Important("order_filled", map[string]string{
		"side":  "BUY",
		"price": "95",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))

	messages := notifier.all()
	require.Len(t, messages, 1)
	msg := messages[0]
	assert.True(t, strings.HasPrefix(msg, "[limit-trader] important"))
	assert.Contains(t, msg, "mode: paper")
	assert.Contains(t, msg, "symbol: BTCUSDT")
	assert.Contains(t, msg, "event: order_filled")
	// Field lines are sorted by key.
	assert.Less(t, strings.Index(msg, "price: 95"), strings.Index(msg, "side: BUY"))
}

func TestManagerNilWithoutNotifier(t *testing.T) {
	m := NewManager("paper", "BTCUSDT", nil, nil)
	assert.Nil(t, m)

	// Nil managers are safe to use.
	m.Important("ignored", nil)
	assert.NoError(t, m.Close(context.Background()))
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	notifier := &captureNotifier{}
	m := NewManager("paper", "BTCUSDT", notifier, nil)

	ctx := context.Background()
	require.NoError(t, m.Close(ctx))
	require.NoError(t, m.Close(ctx))
	m.Important("after_close", nil)
	assert.Empty(t, notifier.all())
}
