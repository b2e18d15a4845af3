// cmd/backtest is a thin wiring layer over internal/engine's entry point
// (§6.5): load config, resolve secrets and symbols, build every kernel
// component, and run one backtest. Matches the teacher's own
// cmd/backtest/main.go shape (flags → typed config → engine run), with
// config loading generalized to viper/logrus per the teacher's
// cmd/binance-spot/main.go, since this kernel always runs through a
// config file rather than the teacher's flag-per-setting surface.
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/broker"
	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/internal/engine"
	"github.com/midassystems/midastrader-sub000/internal/examplestrategy"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
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
	configPath := flag.String("config", "configs/backtest.yaml", "path to the run config file")
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

	queue := engine.NewQueue(1024)
	book := orderbook.New(queue, entry)
	perfLedger := ledger.New(entry)
	portfolioServer := portfolio.New(entry)

	simBroker := broker.New(symbols, book, queue, portfolioServer, perfLedger, cfg.StartingCapital, cfg.SlippageFactor, entry)
	orderMgr := ordermanager.New(symbols, book, portfolioServer, queue, perfLedger, entry)

	dataSource, err := marketdata.NewHistoricalDataSource(ctx, store, cfg.Tickers, cfg.Backtest.StartDate, cfg.Backtest.EndDate, cfg.Backtest.Policy)
	if err != nil {
		logger.Fatalf("failed to build historical data source: %v", err)
	}
	entry.WithField("ticks", dataSource.Remaining()).Info("historical data loaded")

	strat := examplestrategy.NewSMACrossover(10, 30)

	parameters := map[string]interface{}{
		"tickers":          cfg.Tickers,
		"start_date":       cfg.Backtest.StartDate,
		"end_date":         cfg.Backtest.EndDate,
		"starting_capital": cfg.StartingCapital.String(),
		"slippage_factor":  cfg.SlippageFactor,
	}
	persister := persistence.NewSummaryPersister(store, ctx, persistence.SummaryBacktest, parameters)

	eng := engine.New(engine.Config{
		Mode:         engine.Backtest,
		Symbols:      symbols,
		Book:         book,
		Queue:        queue,
		DataSource:   dataSource,
		Broker:       simBroker,
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
		logger.Fatalf("backtest run failed: %v", err)
	}
	entry.Info("backtest complete")
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
