// Package config loads and validates the trader configuration from a single
// strict YAML document.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModePaper   Mode = "paper"
	ModeTestnet Mode = "testnet"
	ModeLive    Mode = "live"
)

type Config struct {
	Mode       Mode   `yaml:"mode" validate:"required,oneof=paper testnet live"`
	Symbol     string `yaml:"symbol" validate:"required,min=6,max=20"`
	BaseAsset  string `yaml:"base_asset" validate:"required,min=2,max=10"`
	QuoteAsset string `yaml:"quote_asset" validate:"required,min=2,max=10"`

	Trading       TradingConfig       `yaml:"trading"`
	Signal        SignalConfig        `yaml:"signal"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Paper         PaperConfig         `yaml:"paper"`
	State         StateConfig         `yaml:"state"`
	Breaker       BreakerConfig       `yaml:"circuit_breaker"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TradingConfig uses pointer fields where zero is a meaningful value, so
// an explicit zero in the file is validated rather than replaced by the
// default for the field.
type TradingConfig struct {
	RiskPct         *Decimal `yaml:"risk_pct"`
	SafetyBufferPct *Decimal `yaml:"safety_buffer_pct"`
	OrderTimeoutSec *int64   `yaml:"order_timeout_sec"`
	StaleDriftPct   *Decimal `yaml:"stale_drift_pct"`
	PollIntervalSec int64    `yaml:"poll_interval_sec" validate:"min=0,max=3600"`
	// DropOnCancelFailure controls whether an order whose cancel request
	// failed is still removed from local tracking.
	DropOnCancelFailure *bool `yaml:"drop_on_cancel_failure"`
}

type SignalConfig struct {
	// Timeframe is a label for the cadence prices are sampled at; it rides
	// along in logs and alerts but does not change the poll interval.
	Timeframe string  `yaml:"timeframe"`
	Window    int     `yaml:"window" validate:"min=0,max=10000"`
	Threshold Decimal `yaml:"threshold"`
}

type ExchangeConfig struct {
	APIKey            string `yaml:"api_key"`
	APISecret         string `yaml:"api_secret"`
	RestBaseURL       string `yaml:"rest_base_url"`
	StreamBaseURL     string `yaml:"stream_base_url"`
	ClientOrderPrefix string `yaml:"client_order_prefix"`
	RecvWindowMs      int64  `yaml:"recv_window_ms"`
	HTTPTimeoutSec    int64  `yaml:"http_timeout_sec"`
	// UseTickerStream feeds the signal source from the websocket miniTicker
	// stream instead of REST polling.
	UseTickerStream bool `yaml:"use_ticker_stream"`
}

type PaperConfig struct {
	BaseBalance  Decimal `yaml:"base_balance"`
	QuoteBalance Decimal `yaml:"quote_balance"`
	LastPrice    Decimal `yaml:"last_price"`
	// WalkPct bounds the per-poll random move of the synthetic market as a
	// fraction of the current price; an explicit zero freezes the price.
	WalkPct *Decimal `yaml:"walk_pct"`
	// Seed fixes the synthetic walk for reproducible runs; zero seeds from
	// the clock.
	Seed  int64      `yaml:"seed"`
	Rules PaperRules `yaml:"rules"`
}

type PaperRules struct {
	QtyStep     Decimal `yaml:"qty_step"`
	MinQty      Decimal `yaml:"min_qty"`
	MinNotional Decimal `yaml:"min_notional"`
}

type StateConfig struct {
	Dir string `yaml:"dir"`
}

type BreakerConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxFailures int  `yaml:"max_failures" validate:"min=0,max=100"`
}

type ObservabilityConfig struct {
	LogLevel          string         `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsListenAddr string         `yaml:"metrics_listen_addr"`
	Telegram          TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec" validate:"min=0,max=120"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.BaseAsset = strings.ToUpper(strings.TrimSpace(c.BaseAsset))
	c.QuoteAsset = strings.ToUpper(strings.TrimSpace(c.QuoteAsset))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimSpace(c.Exchange.RestBaseURL)
	c.Exchange.StreamBaseURL = strings.TrimSpace(c.Exchange.StreamBaseURL)
	c.Exchange.ClientOrderPrefix = strings.TrimSpace(c.Exchange.ClientOrderPrefix)
	c.Signal.Timeframe = strings.ToLower(strings.TrimSpace(c.Signal.Timeframe))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.LogLevel = strings.ToLower(strings.TrimSpace(c.Observability.LogLevel))
	c.Observability.MetricsListenAddr = strings.TrimSpace(c.Observability.MetricsListenAddr)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.Trading.RiskPct == nil {
		c.Trading.RiskPct = &Decimal{decimal.NewFromFloat(0.01)}
	}
	if c.Trading.SafetyBufferPct == nil {
		c.Trading.SafetyBufferPct = &Decimal{decimal.NewFromFloat(0.05)}
	}
	if c.Trading.OrderTimeoutSec == nil {
		timeout := int64(300)
		c.Trading.OrderTimeoutSec = &timeout
	}
	if c.Trading.StaleDriftPct == nil {
		c.Trading.StaleDriftPct = &Decimal{decimal.NewFromFloat(0.10)}
	}
	if c.Trading.PollIntervalSec == 0 {
		c.Trading.PollIntervalSec = 60
	}
	if c.Trading.DropOnCancelFailure == nil {
		drop := true
		c.Trading.DropOnCancelFailure = &drop
	}
	if c.Signal.Timeframe == "" {
		c.Signal.Timeframe = "1m"
	}
	if c.Signal.Window == 0 {
		c.Signal.Window = 20
	}
	if c.Signal.Threshold.Cmp(decimal.Zero) == 0 {
		c.Signal.Threshold = Decimal{decimal.NewFromFloat(0.01)}
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 5000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Exchange.RestBaseURL == "" {
		switch c.Mode {
		case ModeTestnet:
			c.Exchange.RestBaseURL = "https://testnet.binance.vision"
		case ModeLive:
			c.Exchange.RestBaseURL = "https://api.binance.com"
		}
	}
	if c.Exchange.StreamBaseURL == "" {
		switch c.Mode {
		case ModeTestnet:
			c.Exchange.StreamBaseURL = "wss://stream.testnet.binance.vision/ws"
		case ModeLive:
			c.Exchange.StreamBaseURL = "wss://stream.binance.com:9443/ws"
		}
	}
	if c.Paper.LastPrice.Cmp(decimal.Zero) == 0 {
		c.Paper.LastPrice = Decimal{decimal.NewFromInt(100)}
	}
	if c.Paper.QuoteBalance.Cmp(decimal.Zero) == 0 {
		c.Paper.QuoteBalance = Decimal{decimal.NewFromInt(1000)}
	}
	if c.Paper.BaseBalance.Cmp(decimal.Zero) == 0 {
		c.Paper.BaseBalance = Decimal{decimal.NewFromFloat(0.1)}
	}
	if c.Paper.WalkPct == nil {
		c.Paper.WalkPct = &Decimal{decimal.NewFromFloat(0.005)}
	}
	if c.Paper.Rules.QtyStep.Cmp(decimal.Zero) == 0 {
		c.Paper.Rules.QtyStep = Decimal{decimal.NewFromFloat(0.001)}
	}
	if c.Breaker.Enabled && c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !isValidSymbol(c.Symbol) {
		return fmt.Errorf("symbol must match [A-Z0-9], length 6..20")
	}
	if c.Symbol != c.BaseAsset+c.QuoteAsset {
		return fmt.Errorf("symbol %s must be base_asset + quote_asset", c.Symbol)
	}
	if c.Trading.RiskPct == nil || c.Trading.RiskPct.Cmp(decimal.Zero) <= 0 || c.Trading.RiskPct.Cmp(decimal.NewFromInt(1)) > 0 {
		return fmt.Errorf("trading.risk_pct must be in (0, 1]")
	}
	if c.Trading.SafetyBufferPct == nil || c.Trading.SafetyBufferPct.Cmp(decimal.Zero) < 0 || c.Trading.SafetyBufferPct.Cmp(decimal.NewFromInt(1)) >= 0 {
		return fmt.Errorf("trading.safety_buffer_pct must be in [0, 1)")
	}
	if c.Trading.OrderTimeoutSec == nil || *c.Trading.OrderTimeoutSec < 0 || *c.Trading.OrderTimeoutSec > 86400 {
		return fmt.Errorf("trading.order_timeout_sec must be in [0, 86400]")
	}
	if c.Trading.StaleDriftPct == nil || c.Trading.StaleDriftPct.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("trading.stale_drift_pct must be > 0")
	}
	if c.Signal.Window < 2 {
		return fmt.Errorf("signal.window must be >= 2")
	}
	if c.Signal.Threshold.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("signal.threshold must be > 0")
	}
	if c.Mode == ModePaper {
		if c.Paper.QuoteBalance.Cmp(decimal.Zero) < 0 || c.Paper.BaseBalance.Cmp(decimal.Zero) < 0 {
			return fmt.Errorf("paper balances must be >= 0")
		}
		if c.Paper.LastPrice.Cmp(decimal.Zero) <= 0 {
			return fmt.Errorf("paper.last_price must be > 0")
		}
		if c.Paper.WalkPct == nil || c.Paper.WalkPct.Cmp(decimal.Zero) < 0 || c.Paper.WalkPct.Cmp(decimal.NewFromInt(1)) >= 0 {
			return fmt.Errorf("paper.walk_pct must be in [0, 1)")
		}
	} else {
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange api_key/api_secret are required for %s mode", c.Mode)
		}
		if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("exchange rest_base_url %v", err)
		}
		if err := validateURL(c.Exchange.StreamBaseURL, "ws", "wss"); err != nil {
			return fmt.Errorf("exchange stream_base_url %v", err)
		}
		if c.Exchange.RecvWindowMs < 1 || c.Exchange.RecvWindowMs > 60000 {
			return fmt.Errorf("exchange recv_window_ms must be between 1 and 60000")
		}
		if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
			return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
		}
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

var validate = validator.New()

func isValidSymbol(v string) bool {
	if len(v) < 6 || len(v) > 20 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
