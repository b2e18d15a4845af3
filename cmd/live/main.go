// cmd/live is the live-mode counterpart to cmd/backtest (§6.5): the same
// config/secrets/symbol wiring, diverging where live mode needs an
// unbuffered queue, the NATS transport (§6.2), and the exchange feed
// instead of a historical data source.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/broker"
	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/internal/engine"
	"github.com/midassystems/midastrader-sub000/internal/examplestrategy"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/livebus"
	"github.com/midassystems/midastrader-sub000/internal/marketdata"
	"github.com/midassystems/midastrader-sub000/internal/orderbook"
	"github.com/midassystems/midastrader-sub000/internal/ordermanager"
	"github.com/midassystems/midastrader-sub000/internal/persistence"
	"github.com/midassystems/midastrader-sub000/internal/portfolio"
	"github.com/midassystems/midastrader-sub000/internal/secrets"
	"github.com/midassystems/midastrader-sub000/internal/strategy"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/live.yaml", "path to the run config file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		logger.SetLevel(level)
	}
	entry := logrus.NewEntry(logger)

	ctx := context.Background()

	resolver, err := secrets.New(secrets.Config{
		Address:   cfg.Vault.Address,
		Token:     cfg.Vault.Token,
		RoleID:    cfg.Vault.RoleID,
		SecretID:  cfg.Vault.SecretID,
		MountPath: cfg.Vault.MountPath,
	}, entry)
	if err != nil {
		logger.Fatalf("failed to connect to vault: %v", err)
	}

	apiKey, err := resolver.GetPersistenceToken(ctx)
	if err != nil {
		logger.Fatalf("failed to resolve persistence token: %v", err)
	}

	// Broker venue credentials are consumed by the separate exchange
	// connector process (the teacher's own cmd/binance-spot shape), not
	// by this kernel process, which only ever talks to the venue through
	// the NATS gateway (§6.2). Resolved here anyway so a misconfigured
	// vault mount fails this process at startup rather than silently
	// leaving the connector process unable to authenticate later.
	if _, err := resolver.GetBrokerCredentials(ctx, cfg.Live.Venue); err != nil {
		logger.Fatalf("failed to resolve broker credentials for venue %s: %v", cfg.Live.Venue, err)
	}

	var cache persistence.Cache
	if cfg.Redis.Addr != "" {
		cache = persistence.NewRedisCache(persistence.RedisConfig{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB}, entry)
	}

	store := persistence.New(persistence.Config{BaseURL: cfg.Persistence.BaseURL, APIKey: apiKey}, cache, cfg.Redis.TTL, entry)
	store.SetTokenRefresher(resolver.GetPersistenceToken)

	symbols, err := resolveSymbols(ctx, store, cfg.Tickers)
	if err != nil {
		logger.Fatalf("failed to resolve symbols: %v", err)
	}

	// Live mode's queue is unbuffered: producers (the NATS subscriptions,
	// the market feed's own goroutines) each run independently of the
	// consumer loop, so there's no batch of ticks to size a buffer for.
	queue := engine.NewQueue(0)
	book := orderbook.New(queue, entry)
	perfLedger := ledger.New(entry)
	portfolioServer := portfolio.New(entry)

	bus, err := livebus.New(livebus.Config{
		URL:      cfg.NATS.URL,
		ClientID: cfg.NATS.ClientID,
		Streams:  livebus.DefaultStreams(),
	}, symbols, queue, entry)
	if err != nil {
		logger.Fatalf("failed to connect to live bus: %v", err)
	}
	defer bus.Close()

	if _, err := bus.SubscribeExecutions(); err != nil {
		logger.Fatalf("failed to subscribe to execution callbacks: %v", err)
	}

	gateway := livebus.NewGateway(bus)
	liveBroker := broker.NewLiveBroker(gateway, symbols, portfolioServer, perfLedger, entry)
	orderMgr := ordermanager.New(symbols, book, portfolioServer, queue, perfLedger, entry)

	// The exchange feed runs outside internal/engine's own Connect/Run
	// lifecycle (it isn't the engine.Connector — that's liveBroker, the
	// broker gateway session); cmd/live owns its lifecycle directly,
	// pushing each observed record through the same book.Update enqueue
	// point the backtest driver uses (§4.1, §4.6).
	feed := marketdata.NewBinanceKlineFeed(cfg.Tickers, "1m", func(ticker string, record types.Record, at time.Time) error {
		return book.Update(map[string]types.Record{ticker: record}, at)
	}, entry)
	if err := feed.Connect(ctx); err != nil {
		logger.Fatalf("failed to connect market data feed: %v", err)
	}
	defer feed.Disconnect(ctx)

	if err := liveBroker.Connect(ctx); err != nil {
		logger.Fatalf("failed to connect broker gateway: %v", err)
	}
	defer liveBroker.Disconnect()

	sessionID := sessionIDFor(cfg.Tickers)
	if err := store.CreateSession(ctx, sessionID); err != nil {
		logger.Fatalf("failed to register live session: %v", err)
	}
	defer func() {
		if err := store.DeleteSession(ctx, sessionID); err != nil {
			entry.WithError(err).Warn("failed to tear down live session")
		}
	}()

	strat := examplestrategy.NewSMACrossover(10, 30)

	parameters := map[string]interface{}{
		"tickers": cfg.Tickers,
		"venue":   cfg.Live.Venue,
	}
	persister := persistence.NewSummaryPersister(store, ctx, persistence.SummaryLiveSession, parameters)

	eng := engine.New(engine.Config{
		Mode:         engine.Live,
		Symbols:      symbols,
		Book:         book,
		Queue:        queue,
		Connector:    liveBroker,
		Broker:       liveBroker,
		OrderManager: orderMgr,
		Strategy:     strat,
		Ledger:       perfLedger,
		Persister:    persister,
		StrategyCtx: strategy.Context{
			Symbols: symbols,
			Book:    book,
			Queue:   queue,
			Logger:  entry,
		},
		Logger: entry,
	})

	if err := eng.Run(ctx); err != nil {
		logger.Fatalf("live run failed: %v", err)
	}
	entry.Info("live session complete")
}

// resolveSymbols looks every ticker up against the persistence service
// and converts each resolved wire record into a concrete types.Symbol.
func resolveSymbols(ctx context.Context, store *persistence.Client, tickers []string) (map[string]types.Symbol, error) {
	symbols := make(map[string]types.Symbol, len(tickers))
	for _, ticker := range tickers {
		wire, ok, err := store.ResolveSymbol(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("resolve symbol %s: %w", ticker, err)
		}
		if !ok {
			return nil, fmt.Errorf("symbol %s not found", ticker)
		}
		symbol, err := wire.ToSymbol()
		if err != nil {
			return nil, fmt.Errorf("build symbol %s: %w", ticker, err)
		}
		symbols[ticker] = symbol
	}
	return symbols, nil
}

// sessionIDFor derives a stable session id from the ticker set so
// restarting the same configuration resumes the same session mirror
// instead of registering a new one every run.
func sessionIDFor(tickers []string) int64 {
	var h int64 = 1469598103934665603
	for _, t := range tickers {
		for _, c := range t {
			h ^= int64(c)
			h *= 1099511628211
		}
	}
	if h < 0 {
		h = -h
	}
	return h
}
