package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"limit-trader/internal/alert"
	"limit-trader/internal/config"
	"limit-trader/internal/core"
	"limit-trader/internal/engine"
	"limit-trader/internal/exchange"
	"limit-trader/internal/exchange/binance"
	"limit-trader/internal/exchange/paper"
	"limit-trader/internal/logger"
	"limit-trader/internal/metrics"
	"limit-trader/internal/safety"
	sig "limit-trader/internal/signal"
	"limit-trader/internal/store"
	"limit-trader/internal/tracker"
)

const tickerKeepalive = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	log, err := logger.New(cfg.Observability.LogLevel)
	if err != nil {
		fatal(err.Error())
	}
	defer func() { _ = log.Sync() }()

	var alerts *alert.Manager
	if cfg.Observability.Telegram.Enabled {
		notifier := alert.NewTelegramNotifier(
			true,
			cfg.Observability.Telegram.BotToken,
			cfg.Observability.Telegram.ChatID,
			cfg.Observability.Telegram.APIBaseURL,
			time.Duration(cfg.Observability.Telegram.TimeoutSec)*time.Second,
		)
		alerts = alert.NewManager(string(cfg.Mode), cfg.Symbol, notifier, log)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				log.Warn("close alert manager failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateDir := filepath.Join(cfg.State.Dir, strings.ToLower(string(cfg.Mode)), cfg.Symbol)
	st, err := store.New(stateDir)
	if err != nil {
		fatal(err.Error())
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if addr := cfg.Observability.MetricsListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	gateway, client, err := buildGateway(cfg)
	if err != nil {
		fatal(err.Error())
	}
	log.Info("trader starting",
		zap.String("mode", string(cfg.Mode)),
		zap.String("symbol", cfg.Symbol),
		zap.String("gateway", gateway.Name()),
		zap.String("timeframe", cfg.Signal.Timeframe),
	)

	src := sig.NewMedianReversion(cfg.Signal.Window, cfg.Signal.Threshold.Decimal)

	tr := tracker.New(gateway, tracker.Options{
		Symbol:              cfg.Symbol,
		BaseAsset:           cfg.BaseAsset,
		OrderTimeout:        time.Duration(*cfg.Trading.OrderTimeoutSec) * time.Second,
		StaleDriftPct:       cfg.Trading.StaleDriftPct.Decimal,
		DropOnCancelFailure: *cfg.Trading.DropOnCancelFailure,
		Store:               st,
		Alerts:              alerts,
		Metrics:             m,
	}, log)
	if snap, ok, err := st.LoadSnapshot(); err != nil {
		log.Warn("snapshot load failed, starting clean", zap.Error(err))
	} else if ok && snap.Symbol == cfg.Symbol {
		tr.Restore(snap.Orders, snap.Position)
		log.Info("state restored",
			zap.Int("tracked_orders", len(tr.Pending())),
			zap.String("position", string(tr.Position().Side)),
		)
	}

	orch := engine.NewOrchestrator(gateway, src, tr, engine.OrchestratorOptions{
		Symbol:          cfg.Symbol,
		BaseAsset:       cfg.BaseAsset,
		QuoteAsset:      cfg.QuoteAsset,
		RiskPct:         cfg.Trading.RiskPct.Decimal,
		SafetyBufferPct: cfg.Trading.SafetyBufferPct.Decimal,
		Metrics:         m,
	}, log)

	breaker := safety.NewBreaker(cfg.Breaker.Enabled, cfg.Breaker.MaxFailures, log)
	breaker.SetAlerter(alerts)

	runner := &engine.Runner{
		Orchestrator: orch,
		Tracker:      tr,
		Gateway:      gateway,
		Observer:     src,
		Interval:     time.Duration(cfg.Trading.PollIntervalSec) * time.Second,
		Mode:         string(cfg.Mode),
		Symbol:       cfg.Symbol,
		Breaker:      breaker,
		Store:        st,
		Metrics:      m,
		Alerts:       alerts,
		Log:          log,
	}
	if client != nil && cfg.Exchange.UseTickerStream {
		if startTickerStream(ctx, client, cfg.Symbol, src, m, log) {
			runner.Observer = nil
		}
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("trader stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("trader stopped")
}

func buildGateway(cfg config.Config) (exchange.Gateway, *binance.Client, error) {
	if cfg.Mode == config.ModePaper {
		gw := paper.New(paper.Options{
			Symbol:     cfg.Symbol,
			BaseAsset:  cfg.BaseAsset,
			QuoteAsset: cfg.QuoteAsset,
			Rules: core.Rules{
				QtyStep:     cfg.Paper.Rules.QtyStep.Decimal,
				MinQty:      cfg.Paper.Rules.MinQty.Decimal,
				MinNotional: cfg.Paper.Rules.MinNotional.Decimal,
			},
			BaseBalance:  cfg.Paper.BaseBalance.Decimal,
			QuoteBalance: cfg.Paper.QuoteBalance.Decimal,
			LastPrice:    cfg.Paper.LastPrice.Decimal,
			WalkPct:      cfg.Paper.WalkPct.Decimal,
			Seed:         cfg.Paper.Seed,
		})
		return gw, nil, nil
	}
	client, err := binance.NewClient(binance.Options{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		RestBaseURL:       cfg.Exchange.RestBaseURL,
		StreamBaseURL:     cfg.Exchange.StreamBaseURL,
		ClientOrderPrefix: cfg.Exchange.ClientOrderPrefix,
		RecvWindowMs:      cfg.Exchange.RecvWindowMs,
		HTTPTimeoutSec:    cfg.Exchange.HTTPTimeoutSec,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// startTickerStream feeds websocket prices into the signal source. Returns
// false if the stream could not be opened, leaving REST polling in place.
func startTickerStream(ctx context.Context, client *binance.Client, symbol string, observer sig.Observer, m *metrics.Metrics, log *zap.Logger) bool {
	stream, err := client.NewTickerStream(ctx, symbol, tickerKeepalive)
	if err != nil {
		log.Warn("ticker stream unavailable, falling back to polling", zap.Error(err))
		return false
	}
	ticks, errs := stream.Ticks(ctx, symbol)
	go func() {
		for {
			select {
			case tick, ok := <-ticks:
				if !ok {
					return
				}
				observer.Observe(tick.Price, tick.At)
				m.SetLastPrice(tick.Price.InexactFloat64())
			case err, ok := <-errs:
				if !ok {
					return
				}
				if err != nil && ctx.Err() == nil {
					log.Warn("ticker stream error", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return true
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
