// Package examplestrategy provides a minimal moving-average crossover
// strategy so cmd/backtest and cmd/live have something concrete to wire
// against internal/strategy.Strategy. Strategy implementations
// themselves are out of scope as a domain here (§1 Non-goals) — this is
// wiring scaffolding only, grounded on the teacher's own
// SimpleMovingAverageStrategy in internal/backtest/strategy.go,
// generalized from its pull-style GenerateSignals to the kernel's
// push-style OnMarketData that emits SignalEvents directly onto the
// queue (§4.6's dispatch table treats MarketEvent and SignalEvent as
// independent queue entries).
package examplestrategy

import (
	"github.com/shopspring/decimal"

	"github.com/midassystems/midastrader-sub000/internal/strategy"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// SMACrossover goes long a ticker when its short-window average crosses
// above its long-window average, and flat when it crosses back below.
// One position per ticker; each signal carries a fixed trade capital of
// 1000 and a single leg with weight 1.0.
type SMACrossover struct {
	shortPeriod int
	longPeriod  int

	prices   map[string][]decimal.Decimal
	inPos    map[string]bool
	nextID   int64

	ctx strategy.Context
}

// NewSMACrossover constructs a strategy comparing a shortPeriod-long and
// longPeriod-long simple moving average per ticker.
func NewSMACrossover(shortPeriod, longPeriod int) *SMACrossover {
	return &SMACrossover{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make(map[string][]decimal.Decimal),
		inPos:       make(map[string]bool),
		nextID:      1,
	}
}

// Initialize stores the context handed by the engine.
func (s *SMACrossover) Initialize(ctx strategy.Context) error {
	s.ctx = ctx
	return nil
}

// OnMarketData updates each ticker's price history and emits a one-leg
// SignalEvent whenever its crossover state flips.
func (s *SMACrossover) OnMarketData(event types.MarketEvent) error {
	for ticker, record := range event.Data {
		price := types.CurrentPrice(record)
		if price.IsZero() {
			continue
		}
		s.prices[ticker] = append(s.prices[ticker], price)
		if len(s.prices[ticker]) > s.longPeriod {
			s.prices[ticker] = s.prices[ticker][len(s.prices[ticker])-s.longPeriod:]
		}
		if len(s.prices[ticker]) < s.longPeriod {
			continue
		}

		shortAvg := average(s.prices[ticker][len(s.prices[ticker])-s.shortPeriod:])
		longAvg := average(s.prices[ticker])

		wantLong := shortAvg.GreaterThan(longAvg)
		if wantLong == s.inPos[ticker] {
			continue
		}

		action := types.Long
		if !wantLong {
			action = types.Sell
		}
		tradeID := s.nextID
		s.nextID++

		signal := types.SignalEvent{
			Timestamp:    event.Timestamp,
			TradeCapital: 1000,
			TradeInstructions: []types.TradeInstruction{
				{Ticker: ticker, OrderType: types.OrderTypeMarket, Action: action, TradeID: tradeID, LegID: 1, Weight: 1.0},
			},
		}
		s.ctx.Queue.Push(signal)
		s.inPos[ticker] = wantLong
	}
	return nil
}

// Finalize is a no-op: the crossover strategy carries no state that
// needs flushing at shutdown.
func (s *SMACrossover) Finalize() {}

func average(values []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
