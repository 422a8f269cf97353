package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"limit-trader/internal/core"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthSigned
)

// Client is a REST gateway adapter for Binance spot. Per-call timeouts are
// enforced by the underlying HTTP client; callers see a plain blocking call.
type Client struct {
	apiKey            string
	apiSecret         string
	baseURL           string
	streamBaseURL     string
	clientOrderPrefix string

	recvWindow time.Duration
	httpClient *http.Client

	mu        sync.Mutex
	infoCache map[string]symbolInfo
}

type Options struct {
	APIKey            string
	APISecret         string
	RestBaseURL       string
	StreamBaseURL     string
	ClientOrderPrefix string
	RecvWindowMs      int64
	HTTPTimeoutSec    int64
}

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	return &Client{
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		streamBaseURL:     strings.TrimRight(opts.StreamBaseURL, "/"),
		clientOrderPrefix: normalizeClientOrderPrefix(opts.ClientOrderPrefix),
		recvWindow:        time.Duration(opts.RecvWindowMs) * time.Millisecond,
		httpClient:        &http.Client{Timeout: timeout},
		infoCache:         make(map[string]symbolInfo),
	}, nil
}

func (c *Client) Name() string { return "binance" }

func (c *Client) PlaceLimitOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if order.Symbol == "" || order.Qty.Cmp(decimal.Zero) <= 0 || order.Price.Cmp(decimal.Zero) <= 0 {
		return core.Order{}, core.ErrInvalidOrder
	}
	if order.TimeInForce == "" {
		order.TimeInForce = core.GTC
	}
	if order.ClientID == "" {
		order.ClientID = newClientOrderID(c.clientOrderPrefix)
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", "LIMIT")
	params.Set("timeInForce", string(order.TimeInForce))
	params.Set("quantity", order.Qty.String())
	params.Set("price", order.Price.StringFixed(8))
	params.Set("newClientOrderId", order.ClientID)

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, err
	}
	order.ID = strconv.FormatInt(resp.OrderID, 10)
	if resp.Status != "" {
		order.Status = core.OrderStatus(resp.Status)
	} else {
		order.Status = core.OrderNew
	}
	if resp.TransactTime > 0 {
		order.SubmittedAt = time.UnixMilli(resp.TransactTime).UTC()
	} else {
		order.SubmittedAt = time.Now().UTC()
	}
	return order, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, AuthSigned)
	return err
}

func (c *Client) QueryOrder(ctx context.Context, symbol, orderID string) (core.OrderReport, error) {
	if symbol == "" || orderID == "" {
		return core.OrderReport{}, errors.New("symbol and orderID required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/order", params, AuthSigned)
	if err != nil {
		return core.OrderReport{}, err
	}
	var resp orderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderReport{}, err
	}
	executedQty, _ := decimal.NewFromString(resp.ExecutedQty)
	cumQuote, _ := decimal.NewFromString(resp.CumulativeQuoteQty)
	price, _ := decimal.NewFromString(resp.Price)
	// Average fill price when the exchange reports cumulative quote volume,
	// the resting limit price otherwise.
	filledPrice := price
	if executedQty.Cmp(decimal.Zero) > 0 && cumQuote.Cmp(decimal.Zero) > 0 {
		filledPrice = cumQuote.Div(executedQty)
	}
	return core.OrderReport{
		Status:      core.OrderStatus(resp.Status),
		Side:        core.Side(resp.Side),
		FilledPrice: filledPrice,
		FilledQty:   executedQty,
	}, nil
}

func (c *Client) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if asset == "" {
		return decimal.Zero, errors.New("asset required")
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, AuthSigned)
	if err != nil {
		return decimal.Zero, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}
	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s free balance: %w", asset, err)
		}
		return free, nil
	}
	return decimal.Zero, nil
}

func (c *Client) LotRules(ctx context.Context, symbol string) (core.Rules, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return core.Rules{}, err
	}
	return info.rules, nil
}

func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, AuthNone)
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if auth == AuthSigned {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("signature", sign(c.apiSecret, params.Encode()))
	}
	var (
		req *http.Request
		err error
	)
	urlStr := c.baseURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded := params.Encode(); encoded != "" {
			urlStr += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(params.Encode()))
	}
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthSigned {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		return wrapAPIError(apiErr.Code, apiErr.Msg)
	}
	return fmt.Errorf("binance http error %d: %s", status, strings.TrimSpace(string(body)))
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) getSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	if symbol == "" {
		return symbolInfo{}, errors.New("symbol is required")
	}
	c.mu.Lock()
	if info, ok := c.infoCache[symbol]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, AuthNone)
	if err != nil {
		return symbolInfo{}, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return symbolInfo{}, err
	}
	if len(resp.Symbols) == 0 {
		return symbolInfo{}, errors.New("symbol not found")
	}
	info := parseSymbolInfo(resp.Symbols[0])
	c.mu.Lock()
	c.infoCache[symbol] = info
	c.mu.Unlock()
	return info, nil
}

func newClientOrderID(prefix string) string {
	id := prefix + "-" + uuid.NewString()
	// Binance caps newClientOrderId at 36 characters.
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "lt"
	}
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "lt"
	}
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}
