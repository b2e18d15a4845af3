// Package strategy defines the abstraction the kernel drives on every
// market event. Strategy implementations themselves are out of scope
// (§1 Non-goals) — the kernel only consumes this interface. Grounded on
// the teacher's TradingStrategy in internal/backtest/strategy.go,
// generalized from an inline GenerateSignals return value to pushing
// SignalEvents onto the kernel's own queue, matching §4.6's dispatch
// table (MarketEvent and SignalEvent are handled as separate queue
// entries, not a single call-and-return).
package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// PriceSource is the subset of the order book a strategy depends on.
type PriceSource interface {
	CurrentPrice(ticker string) (decimal.Decimal, error)
	CurrentPrices() map[string]decimal.Decimal
	LastUpdated() time.Time
}

// Queue is the subset of the kernel's event queue a strategy depends on.
type Queue interface {
	Push(types.Event)
}

// Context bundles the resources the kernel hands a strategy at
// Initialize time: the static symbol map, read access to current prices,
// and a write-only handle onto the event queue for emitting signals.
type Context struct {
	Symbols map[string]types.Symbol
	Book    PriceSource
	Queue   Queue
	Logger  *logrus.Entry
}

// Strategy is the interface the event loop drives. Initialize runs once
// before the loop starts; OnMarketData runs once per MarketEvent in
// dispatch order; Finalize runs once after the data source is exhausted
// (backtest) or on clean shutdown (live), before the ledger is
// finalized.
type Strategy interface {
	Initialize(ctx Context) error
	OnMarketData(event types.MarketEvent) error
	Finalize()
}
