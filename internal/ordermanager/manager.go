// Package ordermanager implements SPEC_FULL.md §4.3: translation of
// signal events into order events, with capital budgeting and active-
// order deduplication. Grounded on order_manager/manager.py in
// original_source/ (the teacher carries no equivalent component; its own
// trading decisions live inside internal/strategies, which this module
// supersedes for order construction).
package ordermanager

import (
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// PriceSource is the subset of the order book the manager depends on.
type PriceSource interface {
	CurrentPrice(ticker string) (decimal.Decimal, error)
}

// PortfolioView is the subset of the portfolio server the manager reads.
type PortfolioView interface {
	GetActiveOrderTickers() map[string]struct{}
	Position(ticker string) (types.Position, bool)
	Account() types.AccountSnapshot
}

// Queue is the subset of the kernel's event queue the manager depends on.
type Queue interface {
	Push(types.Event)
}

// Ledger is the subset of the performance ledger the manager writes to.
type Ledger interface {
	UpdateSignals(types.SignalSnapshot)
}

// Manager implements OnSignal (§4.3).
type Manager struct {
	symbols   map[string]types.Symbol
	book      PriceSource
	portfolio PortfolioView
	queue     Queue
	perf      Ledger

	nextTradeID int64
	logger      *logrus.Entry
}

// New constructs an order manager over the given symbol map.
func New(symbols map[string]types.Symbol, book PriceSource, portfolioView PortfolioView, queue Queue, perf Ledger, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		symbols:   symbols,
		book:      book,
		portfolio: portfolioView,
		queue:     queue,
		perf:      perf,
		logger:    logger.WithField("component", "order_manager"),
	}
}

// OnSignal implements §4.3's translate-and-gate algorithm. The signal is
// always recorded to the performance ledger, whether or not it produces
// any orders (§4.5, §8 scenario 3). Every leg is built as a market order;
// the instruction's OrderType is not consulted.
func (m *Manager) OnSignal(event types.SignalEvent) error {
	if m.perf != nil {
		m.perf.UpdateSignals(types.SignalSnapshot{
			TimestampNanos: event.Timestamp.UnixNano(),
			TradeCapital:   event.TradeCapital,
			Instructions:   event.TradeInstructions,
		})
	}

	active := m.portfolio.GetActiveOrderTickers()
	for _, instr := range event.TradeInstructions {
		if _, blocked := active[instr.Ticker]; blocked {
			m.logger.WithField("ticker", instr.Ticker).Info("signal dropped: ticker has an active order")
			return nil
		}
	}

	orders := make([]types.OrderEvent, 0, len(event.TradeInstructions))
	totalRequired := decimal.Zero

	for _, instr := range event.TradeInstructions {
		symbol, ok := m.symbols[instr.Ticker]
		if !ok {
			return &kernelerr.OrderConstructionFailure{Ticker: instr.Ticker, Cause: &kernelerr.UnknownTicker{Ticker: instr.Ticker}}
		}
		price, err := m.book.CurrentPrice(instr.Ticker)
		if err != nil {
			return &kernelerr.OrderConstructionFailure{Ticker: instr.Ticker, Cause: err}
		}

		quantity, err := m.computeQuantity(symbol, instr, event.TradeCapital, price)
		if err != nil {
			return &kernelerr.OrderConstructionFailure{Ticker: instr.Ticker, Cause: err}
		}
		if !quantity.IsPositive() {
			m.logger.WithField("ticker", instr.Ticker).Info("signal leg dropped: nothing to exit")
			continue
		}

		order, err := types.NewMarketOrder(instr.Action, quantity)
		if err != nil {
			return &kernelerr.OrderConstructionFailure{Ticker: instr.Ticker, Cause: err}
		}

		var orderValue decimal.Decimal
		if types.IsFuture(symbol) {
			orderValue = quantity.Mul(symbol.InitialMargin())
		} else {
			orderValue = quantity.Mul(price)
		}
		totalRequired = totalRequired.Add(orderValue)

		m.nextTradeID++
		orders = append(orders, types.OrderEvent{
			Timestamp: event.Timestamp,
			TradeID:   m.nextTradeID,
			LegID:     instr.LegID,
			Action:    instr.Action,
			Symbol:    symbol,
			Order:     order,
		})
	}

	if len(orders) == 0 {
		return nil
	}

	account := m.portfolio.Account()
	if totalRequired.Add(account.FullInitMarginReq).GreaterThan(account.FullAvailableFunds) {
		m.logger.WithField("required", totalRequired.String()).Info("signal basket dropped: insufficient capital")
		return nil
	}

	for _, order := range orders {
		m.queue.Push(order)
	}
	return nil
}

// computeQuantity implements §4.3 step 2's entry/exit quantity rule.
func (m *Manager) computeQuantity(symbol types.Symbol, instr types.TradeInstruction, tradeCapital float64, price decimal.Decimal) (decimal.Decimal, error) {
	if instr.Action.IsEntry() {
		allocation := decimal.NewFromFloat(tradeCapital).Mul(decimal.NewFromFloat(instr.Weight).Abs())
		denominator := price.Mul(symbol.PriceMultiplier()).Mul(decimal.NewFromInt(symbol.QuantityMultiplier()))
		if denominator.IsZero() {
			return decimal.Decimal{}, kernelerr.DomainValidation
		}
		return allocation.Div(denominator), nil
	}
	pos, ok := m.portfolio.Position(instr.Ticker)
	if !ok {
		return decimal.Zero, nil
	}
	return pos.Quantity.Abs(), nil
}
