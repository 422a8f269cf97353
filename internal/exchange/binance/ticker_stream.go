package binance

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// TickerStream delivers last-traded prices for one symbol over the market
// data websocket. It exists so the signal source can observe prices between
// polling cycles without extra REST round-trips.
type TickerStream struct {
	conn      *websocket.Conn
	keepalive time.Duration
}

type miniTickerEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

type Tick struct {
	Price decimal.Decimal
	At    time.Time
}

// NewTickerStream subscribes to <symbol>@miniTicker on the stream endpoint.
func (c *Client) NewTickerStream(ctx context.Context, symbol string, keepalive time.Duration) (*TickerStream, error) {
	if c.streamBaseURL == "" {
		return nil, errors.New("stream base url required")
	}
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	endpoint := c.streamBaseURL + "/" + strings.ToLower(symbol) + "@miniTicker"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &TickerStream{conn: conn, keepalive: keepalive}, nil
}

func (s *TickerStream) Ticks(ctx context.Context, symbol string) (<-chan Tick, <-chan error) {
	ticks := make(chan Tick)
	errCh := make(chan error, 4)
	done := make(chan struct{})

	reportErr := func(err error) {
		if err == nil {
			return
		}
		select {
		case errCh <- err:
		default:
		}
	}

	readTimeout := 45 * time.Second
	if s.keepalive > 0 {
		readTimeout = s.keepalive * 3
		if readTimeout < 30*time.Second {
			readTimeout = 30 * time.Second
		}
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	// Binance pings market streams itself; answering keeps the read deadline moving.
	s.conn.SetPingHandler(func(appData string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go func() {
		defer close(done)
		defer close(ticks)
		defer s.conn.Close()

		for {
			_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				reportErr(err)
				return
			}
			if len(data) == 0 {
				continue
			}
			var msg miniTickerEvent
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.EventType != "24hrMiniTicker" {
				continue
			}
			if symbol != "" && msg.Symbol != symbol {
				continue
			}
			price, err := decimal.NewFromString(msg.Close)
			if err != nil || price.Cmp(decimal.Zero) <= 0 {
				continue
			}
			at := time.Now().UTC()
			if msg.EventTime > 0 {
				at = time.UnixMilli(msg.EventTime).UTC()
			}
			select {
			case ticks <- Tick{Price: price, At: at}:
			case <-ctx.Done():
				return
			}
		}
	}()

	if s.keepalive > 0 {
		go func() {
			ticker := time.NewTicker(s.keepalive)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
						reportErr(err)
						_ = s.conn.Close()
						return
					}
				case <-done:
					return
				case <-ctx.Done():
					_ = s.conn.Close()
					return
				}
			}
		}()
	}

	return ticks, errCh
}
