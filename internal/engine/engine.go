// Package engine implements SPEC_FULL.md §4.6: the single-threaded
// cooperative event loop and its two drivers (backtest, live). Grounded
// on original_source/engine/tests/command/test_controller.py, the only
// surviving reference to the kernel's EventController — the teacher's
// own internal/backtest/engine.go RunStrategy loop is the idiomatic-Go
// shape (ticker-driven for-loop, select on ctx.Done()) this is adapted
// from, generalized from equity-only backtesting to the full dispatch
// table and the five event kinds.
package engine

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/strategy"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Mode selects which driver Run uses, mirroring the teacher's Mode enum
// recovered from the controller tests (Mode.BACKTEST / Mode.LIVE).
type Mode int

const (
	Backtest Mode = iota
	Live
)

// Book is the subset of the order book the loop needs to push market
// data (which itself enqueues the MarketEvent, §4.1).
type Book interface {
	Update(data map[string]types.Record, timestamp time.Time) error
}

// DataSource drives the backtest loop. Next returns ok=false once the
// stream is exhausted; the engine infers EOD boundaries itself by
// comparing calendar days across successive timestamps (§4.6).
type DataSource interface {
	Next() (data map[string]types.Record, timestamp time.Time, ok bool, err error)
}

// Broker is the subset of internal/broker.SimulatedBroker the loop
// dispatches to.
type Broker interface {
	OnOrder(types.OrderEvent) error
	OnExecution(types.ExecutionEvent) error
	EODUpdate(types.EODEvent) error
	UpdateEquityValue(at time.Time)
	Liquidate(at time.Time) []types.Trade
}

// OrderManager is the subset of internal/ordermanager.Manager the loop
// dispatches SignalEvents to.
type OrderManager interface {
	OnSignal(types.SignalEvent) error
}

// Strategy is the subset of internal/strategy.Strategy the loop drives.
type Strategy interface {
	Initialize(strategy.Context) error
	OnMarketData(types.MarketEvent) error
	Finalize()
}

// Persister is the subset of internal/persistence the loop calls at
// shutdown to hand off the frozen ledger summary (§6.1). Optional: a nil
// Persister skips the call, which test configurations rely on.
type Persister interface {
	PersistSummary(ledger.Summary) error
}

// Connector is the subset of internal/broker.LiveBroker the live driver
// uses to establish/tear down the gateway connection (§6.2).
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Config bundles every dependency the loop needs. Out of scope: the
// kernel only consumes these abstractions (§1).
type Config struct {
	Mode Mode

	Symbols map[string]types.Symbol
	Book    Book
	Queue   *Queue

	DataSource   DataSource // backtest only
	Connector    Connector  // live only
	Broker       Broker
	OrderManager OrderManager
	Strategy     Strategy
	Ledger       *ledger.Ledger
	Persister    Persister

	StrategyCtx strategy.Context

	Logger *logrus.Entry
}

// Engine runs the event loop described by §4.6's dispatch table.
type Engine struct {
	cfg        Config
	logger     *logrus.Entry
	currentDay time.Time
}

// New constructs an Engine from cfg.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{cfg: cfg, logger: logger.WithField("component", "engine")}
}

// Run dispatches to the backtest or live driver per cfg.Mode.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.cfg.Strategy.Initialize(e.cfg.StrategyCtx); err != nil {
		return err
	}
	switch e.cfg.Mode {
	case Live:
		return e.runLive(ctx)
	default:
		return e.runBacktest(ctx)
	}
}

// runBacktest implements the backtest driver: pull data, infer EOD
// boundaries, drain the queue to empty between pulls, then liquidate and
// finalize once the data source is exhausted (§4.6).
func (e *Engine) runBacktest(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, timestamp, ok, err := e.cfg.DataSource.Next()
		if err != nil {
			return err
		}
		if !ok {
			return e.wrapUpBacktest()
		}

		if e.crossesCalendarDay(timestamp) {
			e.cfg.Queue.Push(types.EODEvent{CalendarDate: e.currentDay})
		}
		e.currentDay = timestamp

		if err := e.cfg.Book.Update(data, timestamp); err != nil {
			return err
		}

		if err := e.drain(timestamp); err != nil {
			return err
		}
	}
}

// crossesCalendarDay reports whether ts falls on a different calendar
// day than the last observed timestamp.
func (e *Engine) crossesCalendarDay(ts time.Time) bool {
	if e.currentDay.IsZero() {
		return false
	}
	y1, m1, d1 := e.currentDay.Date()
	y2, m2, d2 := ts.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// drain dispatches every event currently queued, in FIFO order, until the
// queue is empty. marketTimestamp stamps the backtest-only equity update
// side effect on a MarketEvent dispatch.
func (e *Engine) drain(marketTimestamp time.Time) error {
	for {
		event, ok := e.cfg.Queue.TryPop()
		if !ok {
			return nil
		}
		if err := e.dispatch(event, marketTimestamp); err != nil {
			return err
		}
	}
}

// dispatch routes one event to its handler per §4.6's table.
func (e *Engine) dispatch(event types.Event, marketTimestamp time.Time) error {
	switch ev := event.(type) {
	case types.MarketEvent:
		if err := e.cfg.Strategy.OnMarketData(ev); err != nil {
			return e.handleHandlerError(err)
		}
		if e.cfg.Mode == Backtest {
			e.cfg.Broker.UpdateEquityValue(marketTimestamp)
		}
	case types.SignalEvent:
		if err := e.cfg.OrderManager.OnSignal(ev); err != nil {
			return e.handleHandlerError(err)
		}
	case types.OrderEvent:
		if err := e.cfg.Broker.OnOrder(ev); err != nil {
			return e.handleHandlerError(err)
		}
	case types.ExecutionEvent:
		if err := e.cfg.Broker.OnExecution(ev); err != nil {
			return e.handleHandlerError(err)
		}
	case types.EODEvent:
		if err := e.cfg.Broker.EODUpdate(ev); err != nil {
			return e.handleHandlerError(err)
		}
	}
	return nil
}

// handleHandlerError applies §7's fatal/non-fatal split: fatal errors
// propagate and stop the loop, everything else is logged and the loop
// continues.
func (e *Engine) handleHandlerError(err error) error {
	if kernelerr.IsFatal(err) {
		return err
	}
	e.logger.WithError(err).Warn("event handler returned a non-fatal error")
	return nil
}

// wrapUpBacktest runs the shutdown sequence the data source exhaustion
// triggers: a final EOD mark, liquidation, strategy teardown, ledger
// freeze and persistence handoff.
func (e *Engine) wrapUpBacktest() error {
	if err := e.cfg.Broker.EODUpdate(types.EODEvent{CalendarDate: e.currentDay}); err != nil {
		if kernelerr.IsFatal(err) {
			return err
		}
		e.logger.WithError(err).Warn("final EOD update returned a non-fatal error")
	}
	e.cfg.Broker.Liquidate(e.currentDay)
	e.cfg.Strategy.Finalize()
	summary := e.cfg.Ledger.Freeze()
	if e.cfg.Persister != nil {
		if err := e.cfg.Persister.PersistSummary(summary); err != nil {
			return err
		}
	}
	return nil
}

// runLive implements the live driver: block on the queue, dispatch as
// events arrive, and drain cleanly on SIGINT/SIGTERM (§4.6, §5).
func (e *Engine) runLive(ctx context.Context) error {
	if e.cfg.Connector != nil {
		if err := e.cfg.Connector.Connect(ctx); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	now := time.Now()
	for {
		select {
		case <-ctx.Done():
			return e.wrapUpLive()
		case <-sigCh:
			e.logger.Info("shutdown signal received, draining in-flight events")
			return e.wrapUpLive()
		case event := <-e.cfg.Queue.C():
			if err := e.dispatch(event, now); err != nil {
				return err
			}
		}
	}
}

// wrapUpLive drains whatever remains on the queue, disconnects the
// gateway, tears down the strategy and persists the session summary.
func (e *Engine) wrapUpLive() error {
	if err := e.drain(time.Now()); err != nil {
		e.logger.WithError(err).Warn("error draining in-flight events during shutdown")
	}
	if e.cfg.Connector != nil {
		if err := e.cfg.Connector.Disconnect(); err != nil {
			e.logger.WithError(err).Warn("error disconnecting broker gateway")
		}
	}
	e.cfg.Strategy.Finalize()
	summary := e.cfg.Ledger.Freeze()
	if e.cfg.Persister != nil {
		if err := e.cfg.Persister.PersistSummary(summary); err != nil {
			return err
		}
	}
	return nil
}
