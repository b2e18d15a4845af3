package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/strategy"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// fakeBook mimics internal/orderbook.OrderBook's contract of pushing a
// MarketEvent onto the queue as part of Update (§4.1).
type fakeBook struct {
	queue   *Queue
	updates []map[string]types.Record
}

func (b *fakeBook) Update(data map[string]types.Record, timestamp time.Time) error {
	b.updates = append(b.updates, data)
	b.queue.Push(types.MarketEvent{Timestamp: timestamp, Data: data})
	return nil
}

type scriptedSource struct {
	steps []sourceStep
	i     int
}

type sourceStep struct {
	data      map[string]types.Record
	timestamp time.Time
}

func (s *scriptedSource) Next() (map[string]types.Record, time.Time, bool, error) {
	if s.i >= len(s.steps) {
		return nil, time.Time{}, false, nil
	}
	step := s.steps[s.i]
	s.i++
	return step.data, step.timestamp, true, nil
}

type fakeBroker struct {
	onOrderCalls     int
	onExecutionCalls int
	eodCalls         int
	equityUpdates    int
	liquidated       bool
	onOrderErr       error
}

func (b *fakeBroker) OnOrder(types.OrderEvent) error {
	b.onOrderCalls++
	return b.onOrderErr
}
func (b *fakeBroker) OnExecution(types.ExecutionEvent) error {
	b.onExecutionCalls++
	return nil
}
func (b *fakeBroker) EODUpdate(types.EODEvent) error {
	b.eodCalls++
	return nil
}
func (b *fakeBroker) UpdateEquityValue(at time.Time) { b.equityUpdates++ }
func (b *fakeBroker) Liquidate(at time.Time) []types.Trade {
	b.liquidated = true
	return nil
}

type fakeOrderManager struct {
	calls int
}

func (m *fakeOrderManager) OnSignal(types.SignalEvent) error {
	m.calls++
	return nil
}

type fakeStrategy struct {
	initialized bool
	marketCalls int
	finalized   bool
}

func (s *fakeStrategy) Initialize(ctx strategy.Context) error {
	s.initialized = true
	return nil
}
func (s *fakeStrategy) OnMarketData(event types.MarketEvent) error {
	s.marketCalls++
	return nil
}
func (s *fakeStrategy) Finalize() { s.finalized = true }

type fakePersister struct {
	called  bool
	summary ledger.Summary
}

func (p *fakePersister) PersistSummary(s ledger.Summary) error {
	p.called = true
	p.summary = s
	return nil
}

func newBar(ticker string) types.Record {
	return types.BarRecord{
		Ticker: ticker,
		Open:   decimal.NewFromInt(100),
		High:   decimal.NewFromInt(101),
		Low:    decimal.NewFromInt(99),
		Close:  decimal.NewFromInt(100),
		Volume: 1000,
	}
}

// TestBacktestDispatchesMarketEventAndWrapsUp mirrors
// original_source/engine/tests/command/test_controller.py's per-event
// assertions: one MarketEvent on the queue drives strategy.OnMarketData
// and broker.UpdateEquityValue, and data exhaustion runs the wrap-up
// (final EOD mark, liquidation, strategy finalize, persistence).
func TestBacktestDispatchesMarketEventAndWrapsUp(t *testing.T) {
	queue := NewQueue(16)
	book := &fakeBook{queue: queue}
	broker := &fakeBroker{}
	om := &fakeOrderManager{}
	strat := &fakeStrategy{}
	perf := ledger.New(nil)
	persister := &fakePersister{}

	ts := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	source := &scriptedSource{steps: []sourceStep{
		{data: map[string]types.Record{"AAPL": newBar("AAPL")}, timestamp: ts},
	}}

	e := New(Config{
		Mode:         Backtest,
		Symbols:      map[string]types.Symbol{},
		Book:         book,
		Queue:        queue,
		DataSource:   source,
		Broker:       broker,
		OrderManager: om,
		Strategy:     strat,
		Ledger:       perf,
		Persister:    persister,
	})

	require.NoError(t, e.Run(context.Background()))

	assert.True(t, strat.initialized)
	assert.Len(t, book.updates, 1, "one MarketEvent pushed via the order book")
	assert.Equal(t, 1, strat.marketCalls, "MarketEvent dispatched to strategy.OnMarketData")
	assert.Equal(t, 1, broker.equityUpdates, "MarketEvent triggers broker.UpdateEquityValue in backtest")
	assert.True(t, broker.liquidated, "data exhaustion triggers liquidation")
	assert.True(t, strat.finalized)
	assert.True(t, persister.called, "ledger summary handed to the persister on wrap-up")
	// EODUpdate fires once as the final wrap-up mark (no calendar-day
	// boundary was crossed mid-stream since there was only one timestamp).
	assert.Equal(t, 1, broker.eodCalls)
}

// TestBacktestEODEventOnCalendarDayBoundary covers the calendar-day
// transition rule by counting calls: crossing from day D to day D+1
// dispatches one EODEvent in addition to the final wrap-up one. The
// relative order of that EODEvent and day D+1's market event is not
// asserted here.
func TestBacktestEODEventOnCalendarDayBoundary(t *testing.T) {
	queue := NewQueue(16)
	book := &fakeBook{queue: queue}
	broker := &fakeBroker{}
	om := &fakeOrderManager{}
	strat := &fakeStrategy{}
	perf := ledger.New(nil)

	day1 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC)
	source := &scriptedSource{steps: []sourceStep{
		{data: map[string]types.Record{"AAPL": newBar("AAPL")}, timestamp: day1},
		{data: map[string]types.Record{"AAPL": newBar("AAPL")}, timestamp: day2},
	}}

	e := New(Config{
		Mode:         Backtest,
		Book:         book,
		Queue:        queue,
		DataSource:   source,
		Broker:       broker,
		OrderManager: om,
		Strategy:     strat,
		Ledger:       perf,
	})

	require.NoError(t, e.Run(context.Background()))
	// One EODEvent for the day1 -> day2 transition, plus the final
	// wrap-up EODUpdate call.
	assert.Equal(t, 2, broker.eodCalls)
	assert.Equal(t, 2, strat.marketCalls)
}

// TestFatalHandlerErrorStopsTheLoop confirms a StateMachineViolation
// surfaced from broker.OnOrder propagates out of Run rather than being
// logged and skipped (§7).
func TestFatalHandlerErrorStopsTheLoop(t *testing.T) {
	queue := NewQueue(16)
	book := &fakeBook{queue: queue}
	broker := &fakeBroker{onOrderErr: &kernelerr.StateMachineViolation{Ticker: "AAPL", Detail: "illegal transition"}}
	om := &fakeOrderManager{}
	strat := &fakeStrategy{}
	perf := ledger.New(nil)

	order, err := types.NewMarketOrder(types.Long, decimal.NewFromInt(10))
	require.NoError(t, err)
	queue.Push(types.OrderEvent{Timestamp: time.Now(), TradeID: 1, LegID: 1, Action: types.Long, Order: order})

	source := &scriptedSource{steps: []sourceStep{
		{data: map[string]types.Record{"AAPL": newBar("AAPL")}, timestamp: time.Now()},
	}}

	e := New(Config{
		Mode:         Backtest,
		Book:         book,
		Queue:        queue,
		DataSource:   source,
		Broker:       broker,
		OrderManager: om,
		Strategy:     strat,
		Ledger:       perf,
	})

	err = e.Run(context.Background())
	require.Error(t, err)
	var svErr *kernelerr.StateMachineViolation
	assert.ErrorAs(t, err, &svErr)
	assert.False(t, broker.liquidated, "loop exits immediately on a fatal handler error, before wrap-up")
}
