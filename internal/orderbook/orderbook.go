// Package orderbook implements SPEC_FULL.md §4.1: the single source of
// truth for the most recent market observation per ticker within a run.
// Grounded on the contract recovered from
// engine/tests/order_book/test_order_book.py in original_source/, since
// the order book's own .py implementation was filtered out of the
// retrieval pack.
package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/observer"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Queue is the minimal interface the order book needs from the kernel's
// event queue (internal/engine owns the concrete channel-backed type).
type Queue interface {
	Push(types.Event)
}

// OrderBook holds the latest record per ticker and publishes a
// types.MarketEvent (plus an observer notification) on every update.
type OrderBook struct {
	observer.Subject

	mu          sync.RWMutex
	book        map[string]types.Record
	lastUpdated time.Time

	queue  Queue
	logger *logrus.Entry
}

// New constructs an OrderBook publishing onto queue.
func New(queue Queue, logger *logrus.Entry) *OrderBook {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OrderBook{
		book:   make(map[string]types.Record),
		queue:  queue,
		logger: logger.WithField("component", "orderbook"),
	}
}

// Update atomically replaces the per-ticker entries in data, records
// last_updated, enqueues a MarketEvent and notifies observers strictly
// after the book has been updated (§4.1 invariant).
func (ob *OrderBook) Update(data map[string]types.Record, timestamp time.Time) error {
	if len(data) == 0 {
		return kernelerr.DomainValidation
	}

	ob.mu.Lock()
	for ticker, rec := range data {
		ob.book[ticker] = rec
	}
	ob.lastUpdated = timestamp
	ob.mu.Unlock()

	event := types.MarketEvent{Timestamp: timestamp, Data: data}
	if ob.queue != nil {
		ob.queue.Push(event)
	}
	ob.Notify(observer.MarketEventNotice, event)
	ob.logger.WithField("tickers", len(data)).Debug("market data updated")
	return nil
}

// CurrentPrice returns the order book's notion of "current price" for a
// ticker: close for bars, mid for quotes (§4.1). Returns UnknownTicker if
// the ticker has never been observed.
func (ob *OrderBook) CurrentPrice(ticker string) (decimal.Decimal, error) {
	ob.mu.RLock()
	rec, ok := ob.book[ticker]
	ob.mu.RUnlock()
	if !ok {
		return decimal.Decimal{}, &kernelerr.UnknownTicker{Ticker: ticker}
	}
	return types.CurrentPrice(rec), nil
}

// CurrentPrices returns a snapshot of every ticker's current price.
func (ob *OrderBook) CurrentPrices() map[string]decimal.Decimal {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(ob.book))
	for ticker, rec := range ob.book {
		out[ticker] = types.CurrentPrice(rec)
	}
	return out
}

// LastUpdated returns the timestamp of the most recent Update call, used
// by the broker to stamp account snapshots (§4.4.7).
func (ob *OrderBook) LastUpdated() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdated
}
