// Package broker implements SPEC_FULL.md §4.4: the simulated broker
// (mark-to-market, margin accounting, position lifecycle, slippage-
// adjusted fills, liquidation, commission modeling), and §6.2's live
// broker gateway contract. The simulated broker's formulas are grounded
// directly on engine/gateways/backtest/dummy_broker.py in
// original_source/, preserved bit-for-bit including the sign conventions
// flagged as Open Questions in SPEC_FULL.md §9.
package broker

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/portfolio"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// PriceSource is the subset of the order book the broker depends on.
type PriceSource interface {
	CurrentPrice(ticker string) (decimal.Decimal, error)
	CurrentPrices() map[string]decimal.Decimal
	LastUpdated() time.Time
}

// Queue is the subset of the kernel's event queue the broker depends on.
type Queue interface {
	Push(types.Event)
}

// SimulatedBroker holds open positions and the account ledger for a
// single run and applies §4.4's fill/account/position update rules. Per
// the §4.6 dispatch table, OnOrder computes the fill and emits an
// ExecutionEvent; OnExecution performs the actual account/position
// mutation once that event is drained.
type SimulatedBroker struct {
	symbols        map[string]types.Symbol
	positions      map[string]types.Position
	account        types.AccountSnapshot
	lastTrade      map[string]types.Trade
	slippageFactor int64

	book      PriceSource
	queue     Queue
	portfolio *portfolio.Server
	perf      *ledger.Ledger

	logger *logrus.Entry
}

// New constructs a SimulatedBroker seeded with startingCapital (§4.4).
func New(symbols map[string]types.Symbol, book PriceSource, queue Queue, portfolioServer *portfolio.Server,
	perfLedger *ledger.Ledger, startingCapital decimal.Decimal, slippageFactor int64, logger *logrus.Entry) *SimulatedBroker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SimulatedBroker{
		symbols:        symbols,
		positions:      make(map[string]types.Position),
		account:        types.NewStartingAccount(startingCapital, time.Time{}),
		lastTrade:      make(map[string]types.Trade),
		slippageFactor: slippageFactor,
		book:           book,
		queue:          queue,
		portfolio:      portfolioServer,
		perf:           perfLedger,
		logger:         logger.WithField("component", "simulated_broker"),
	}
}

// Account returns the broker's current account snapshot.
func (b *SimulatedBroker) Account() types.AccountSnapshot { return b.account }

// Position returns the broker's current position for ticker, if any.
func (b *SimulatedBroker) Position(ticker string) (types.Position, bool) {
	pos, ok := b.positions[ticker]
	return pos, ok
}

// resolveSymbol looks the ticker up in the symbol map, falling back to
// the symbol instance carried on the event when the map lacks an entry
// (the map is always expected to be complete; this only guards against a
// misconfigured run).
func (b *SimulatedBroker) resolveSymbol(symbol types.Symbol) types.Symbol {
	if resolved, ok := b.symbols[symbol.Ticker()]; ok {
		return resolved
	}
	return symbol
}

// FillPrice computes the slippage-adjusted fill price (§4.4.1):
// current_price ± slippage_factor × tick_size, where tick_size is 1 for
// equities and the symbol's own tick size for futures. The source applies
// +slippage for Long/Cover and −slippage for Short/Sell; this is
// preserved exactly (SPEC_FULL.md §9 Open Question 1) even though it
// looks backwards for the sell side.
func (b *SimulatedBroker) FillPrice(symbol types.Symbol, action types.Action) (decimal.Decimal, error) {
	current, err := b.book.CurrentPrice(symbol.Ticker())
	if err != nil {
		return decimal.Decimal{}, err
	}
	adjustment := symbol.TickSize().Mul(decimal.NewFromInt(b.slippageFactor))
	switch action {
	case types.Long, types.Cover:
		return current.Add(adjustment), nil
	case types.Short, types.Sell:
		return current.Sub(adjustment), nil
	default:
		return decimal.Decimal{}, &kernelerr.StateMachineViolation{Ticker: symbol.Ticker(), Detail: fmt.Sprintf("unrecognized action %q in fill price", action)}
	}
}

// CommissionFees computes |quantity| × fees_per_unit (§4.4.2). If ticker
// is absent from the symbol map, logs and charges zero.
func (b *SimulatedBroker) CommissionFees(ticker string, quantity decimal.Decimal) decimal.Decimal {
	symbol, ok := b.symbols[ticker]
	if !ok {
		b.logger.WithField("ticker", ticker).Warn("commission requested for unknown ticker, charging zero fees")
		return decimal.Zero
	}
	return quantity.Abs().Mul(symbol.FeesPerUnit())
}

// signedQuantity maps an action onto the signed quantity convention used
// throughout position/account bookkeeping: positive for entering-long or
// covering (BUY-side), negative for entering-short or selling (SELL-side).
func signedQuantity(action types.Action, quantity decimal.Decimal) (decimal.Decimal, error) {
	switch action {
	case types.Long, types.Cover:
		return quantity, nil
	case types.Short, types.Sell:
		return quantity.Neg(), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unrecognized action %q", action)
	}
}

// validateTransition enforces the position state machine of §4.4.11:
// from Absent only Long/Short are legal; from a Long position only
// Long(add)/Sell(reduce-or-flip) are legal; from a Short position only
// Short(add)/Cover(reduce-or-flip) are legal. Any other combination is a
// StateMachineViolation.
func validateTransition(ticker string, existing *types.Position, action types.Action) error {
	switch {
	case existing == nil:
		if action != types.Long && action != types.Short {
			return &kernelerr.StateMachineViolation{Ticker: ticker, Detail: fmt.Sprintf("no open position, action %q must be Long or Short", action)}
		}
	case existing.Action == types.BrokerBuy:
		if action != types.Long && action != types.Sell {
			return &kernelerr.StateMachineViolation{Ticker: ticker, Detail: fmt.Sprintf("long position, action %q must be Long or Sell", action)}
		}
	case existing.Action == types.BrokerSell:
		if action != types.Short && action != types.Cover {
			return &kernelerr.StateMachineViolation{Ticker: ticker, Detail: fmt.Sprintf("short position, action %q must be Short or Cover", action)}
		}
	}
	return nil
}

type transitionKind int

const (
	transitionNewOrAdd transitionKind = iota
	transitionReduce
	transitionFullExit
	transitionFlip
)

func classifyTransition(existing *types.Position, q decimal.Decimal) transitionKind {
	if existing == nil || existing.Quantity.IsZero() {
		return transitionNewOrAdd
	}
	if existing.Quantity.Sign() == q.Sign() {
		return transitionNewOrAdd
	}
	absQ := q.Abs()
	absExisting := existing.Quantity.Abs()
	switch {
	case absQ.LessThan(absExisting):
		return transitionReduce
	case absQ.Equal(absExisting):
		return transitionFullExit
	default:
		return transitionFlip
	}
}

// tradePnL implements §4.4.4's trade_pnl formula exactly, including the
// quantity-negation sign convention preserved from
// dummy_broker.py::_calculate_trade_pnl (SPEC_FULL.md §9 Open Question 2).
func tradePnL(pos types.Position, fillPrice decimal.Decimal, q decimal.Decimal) decimal.Decimal {
	negQ := q.Neg()
	currentValue := fillPrice.Mul(pos.PriceMultiplier).Mul(negQ.Mul(decimal.NewFromInt(pos.QuantityMultiplier)))
	entryValue := pos.AvgCost.Mul(negQ)
	return currentValue.Sub(entryValue)
}

// applyPositionUpdate implements §4.4.6's position invariants, independent
// of instrument class: net-zero removes the entry, same-direction adds
// average the cost, opposite-direction reductions retain avg_cost, and
// flips reset the position.
func applyPositionUpdate(symbol types.Symbol, existing *types.Position, q, fillPrice decimal.Decimal, kind transitionKind) *types.Position {
	priceMult := symbol.PriceMultiplier()
	qtyMult := symbol.QuantityMultiplier()

	switch kind {
	case transitionNewOrAdd:
		addedValue := fillPrice.Mul(priceMult).Mul(q).Mul(decimal.NewFromInt(qtyMult))
		var existingValue, existingQty decimal.Decimal
		if existing != nil {
			existingValue = existing.AvgCost.Mul(existing.Quantity)
			existingQty = existing.Quantity
		}
		netQty := existingQty.Add(q)
		newAvgCost := existingValue.Add(addedValue).Div(netQty)
		side := types.BrokerBuy
		if netQty.IsNegative() {
			side = types.BrokerSell
		}
		unrealized := decimal.Zero
		if existing != nil {
			unrealized = existing.UnrealizedPnL
		}
		return &types.Position{
			Action:             side,
			Quantity:           netQty,
			AvgCost:            newAvgCost,
			QuantityMultiplier: qtyMult,
			PriceMultiplier:    priceMult,
			InitialMargin:      symbol.InitialMargin(),
			UnrealizedPnL:      unrealized,
		}
	case transitionReduce:
		netQty := existing.Quantity.Add(q)
		updated := *existing
		updated.Quantity = netQty
		return &updated
	case transitionFullExit:
		return nil
	case transitionFlip:
		netQty := existing.Quantity.Add(q)
		side := types.BrokerBuy
		if netQty.IsNegative() {
			side = types.BrokerSell
		}
		return &types.Position{
			Action:             side,
			Quantity:           netQty,
			AvgCost:            fillPrice.Mul(priceMult).Mul(decimal.NewFromInt(qtyMult)),
			QuantityMultiplier: qtyMult,
			PriceMultiplier:    priceMult,
			InitialMargin:      symbol.InitialMargin(),
			UnrealizedPnL:      decimal.Zero,
		}
	}
	return existing
}

// OnOrder implements the order half of §4.4.3's "place order" sequence:
// compute the fill price and commission, validate the action against the
// current position's state (§4.4.11), build the trade record, and emit
// an ExecutionEvent. No account or position mutation happens here — that
// is OnExecution's job, per the §4.6 dispatch table.
func (b *SimulatedBroker) OnOrder(event types.OrderEvent) error {
	symbol := b.resolveSymbol(event.Symbol)
	ticker := symbol.Ticker()

	existing, hasExisting := b.positions[ticker]
	var existingPtr *types.Position
	if hasExisting {
		existingPtr = &existing
	}
	if err := validateTransition(ticker, existingPtr, event.Action); err != nil {
		return err
	}

	fillPrice, err := b.FillPrice(symbol, event.Action)
	if err != nil {
		return err
	}
	fees := b.CommissionFees(ticker, event.Order.Quantity)

	q, err := signedQuantity(event.Action, event.Order.Quantity)
	if err != nil {
		return &kernelerr.StateMachineViolation{Ticker: ticker, Detail: err.Error()}
	}

	trade := types.Trade{
		TradeID:        event.TradeID,
		LegID:          event.LegID,
		TimestampNanos: event.Timestamp.UnixNano(),
		Ticker:         ticker,
		Quantity:       q,
		AvgPrice:       fillPrice,
		TradeValue:     fillPrice.Mul(symbol.PriceMultiplier()).Mul(q).Mul(decimal.NewFromInt(symbol.QuantityMultiplier())).Round(4),
		TradeCost:      fees,
		Action:         event.Action,
		Fees:           fees,
	}

	if b.queue != nil {
		b.queue.Push(types.ExecutionEvent{Timestamp: event.Timestamp, TradeDetails: trade, Action: event.Action, Symbol: symbol})
	}
	return nil
}

// OnExecution implements §4.4.3 steps 3-5 plus §4.4.4-§4.4.7: apply the
// futures or equity account update, the position update, recompute
// net liquidation, record the trade, and publish the refreshed state to
// the portfolio server.
func (b *SimulatedBroker) OnExecution(event types.ExecutionEvent) error {
	symbol := b.resolveSymbol(event.Symbol)
	ticker := symbol.Ticker()
	trade := event.TradeDetails
	q := trade.Quantity

	b.account.FullAvailableFunds = b.account.FullAvailableFunds.Sub(trade.Fees)

	existing, hasExisting := b.positions[ticker]
	var existingPtr *types.Position
	if hasExisting {
		existingPtr = &existing
	}

	var newPos *types.Position
	var err error
	if types.IsFuture(symbol) {
		newPos, err = b.applyFuturesUpdate(symbol, existingPtr, q, trade.AvgPrice)
	} else {
		newPos, err = b.applyEquityUpdate(symbol, existingPtr, event.Action, q, trade.AvgPrice)
	}
	if err != nil {
		return err
	}

	if newPos == nil {
		delete(b.positions, ticker)
	} else {
		b.positions[ticker] = *newPos
	}

	b.recomputeNetLiquidation()

	b.lastTrade[ticker] = trade
	b.publishState(ticker)
	if b.perf != nil {
		b.perf.UpdateTrades(trade)
		b.perf.UpdateAccountLog(b.account)
	}
	return nil
}

// applyFuturesUpdate implements §4.4.4's four-case table.
func (b *SimulatedBroker) applyFuturesUpdate(symbol types.Symbol, existing *types.Position, q, fillPrice decimal.Decimal) (*types.Position, error) {
	margin := symbol.InitialMargin()
	kind := classifyTransition(existing, q)

	switch kind {
	case transitionNewOrAdd:
		b.account.FullInitMarginReq = b.account.FullInitMarginReq.Add(margin.Mul(q.Abs()))
		return applyPositionUpdate(symbol, existing, q, fillPrice, kind), nil

	case transitionReduce:
		perContract := existing.UnrealizedPnL.Div(existing.Quantity)
		pnlSegment := perContract.Mul(q)
		pnl := tradePnL(*existing, fillPrice, q)
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Add(pnl).Sub(pnlSegment)
		b.account.FullInitMarginReq = b.account.FullInitMarginReq.Sub(margin.Mul(q.Abs()))

		updated := applyPositionUpdate(symbol, existing, q, fillPrice, kind)
		updated.UnrealizedPnL = existing.UnrealizedPnL.Sub(pnlSegment)
		return updated, nil

	case transitionFullExit:
		pnl := tradePnL(*existing, fillPrice, q)
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Add(pnl).Sub(existing.UnrealizedPnL)
		b.account.FullInitMarginReq = b.account.FullInitMarginReq.Sub(margin.Mul(q.Abs()))
		return nil, nil

	case transitionFlip:
		pnl := tradePnL(*existing, fillPrice, q)
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Add(pnl).Sub(existing.UnrealizedPnL)
		b.account.FullInitMarginReq = b.account.FullInitMarginReq.Sub(margin.Mul(existing.Quantity.Abs()))
		b.account.FullInitMarginReq = b.account.FullInitMarginReq.Add(margin.Mul(q.Abs().Sub(existing.Quantity.Abs())))
		return applyPositionUpdate(symbol, existing, q, fillPrice, kind), nil
	}
	return existing, nil
}

// applyEquityUpdate implements §4.4.5's cash debit/credit plus the
// shared position-update rules of §4.4.6 (equities carry zero margin, so
// no init_margin_req mutation ever occurs here).
func (b *SimulatedBroker) applyEquityUpdate(symbol types.Symbol, existing *types.Position, action types.Action, q, fillPrice decimal.Decimal) (*types.Position, error) {
	absQty := q.Abs()
	switch action {
	case types.Long, types.Cover:
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Sub(fillPrice.Mul(absQty))
	case types.Short, types.Sell:
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Add(fillPrice.Mul(absQty))
	default:
		return nil, &kernelerr.StateMachineViolation{Ticker: symbol.Ticker(), Detail: fmt.Sprintf("unrecognized action %q in equity update", action)}
	}

	kind := classifyTransition(existing, q)
	if kind == transitionReduce {
		perContract := existing.UnrealizedPnL.Div(existing.Quantity)
		pnlSegment := perContract.Mul(q)
		updated := applyPositionUpdate(symbol, existing, q, fillPrice, kind)
		updated.UnrealizedPnL = existing.UnrealizedPnL.Sub(pnlSegment)
		return updated, nil
	}
	if kind == transitionFullExit {
		return nil, nil
	}
	return applyPositionUpdate(symbol, existing, q, fillPrice, kind), nil
}

// positionValue implements §4.4.7's per-instrument valuation: futures are
// marked-to-market PnL, equities are plain market value.
func positionValue(symbol types.Symbol, pos types.Position, currentPrice decimal.Decimal) decimal.Decimal {
	marketLeg := currentPrice.Mul(pos.PriceMultiplier).Mul(pos.Quantity).Mul(decimal.NewFromInt(pos.QuantityMultiplier))
	if types.IsFuture(symbol) {
		return marketLeg.Sub(pos.AvgCost.Mul(pos.Quantity))
	}
	return marketLeg
}

// recomputeNetLiquidation implements §4.4.7.
func (b *SimulatedBroker) recomputeNetLiquidation() {
	total := decimal.Zero
	prices := b.book.CurrentPrices()
	for ticker, pos := range b.positions {
		symbol, ok := b.symbols[ticker]
		if !ok {
			continue
		}
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		total = total.Add(positionValue(symbol, pos, price))
	}
	b.account.NetLiquidation = b.account.FullAvailableFunds.Add(total).Round(2)
	b.account.Timestamp = b.book.LastUpdated()
}

// EODUpdate implements §4.4.8's mark-to-market pass plus the §4.4.9
// margin-call check, invoked by the event loop when an EODEvent is
// dispatched (§4.6).
func (b *SimulatedBroker) EODUpdate(event types.EODEvent) error {
	prices := b.book.CurrentPrices()
	for ticker, pos := range b.positions {
		symbol, ok := b.symbols[ticker]
		if !ok || !types.IsFuture(symbol) {
			continue
		}
		price, ok := prices[ticker]
		if !ok {
			continue
		}
		newPnL := positionValue(symbol, pos, price)
		b.account.UnrealizedPnL = b.account.UnrealizedPnL.Add(newPnL)
		b.account.FullAvailableFunds = b.account.FullAvailableFunds.Add(newPnL).Sub(pos.UnrealizedPnL)
		pos.UnrealizedPnL = newPnL
		b.positions[ticker] = pos
	}
	b.recomputeNetLiquidation()

	if marginCall := b.checkMarginCall(); marginCall != nil {
		b.logger.WithError(marginCall).Warn("margin call condition observed")
	}

	for ticker := range b.positions {
		b.publishState(ticker)
	}
	if b.perf != nil {
		b.perf.UpdateAccountLog(b.account)
		b.perf.UpdateEquity(ledger.EquityPoint{TimestampNanos: event.CalendarDate.UnixNano(), EquityValue: b.account.NetLiquidation})
	}
	return nil
}

// checkMarginCall implements §4.4.9: logged, not enforced.
func (b *SimulatedBroker) checkMarginCall() error {
	if b.account.FullAvailableFunds.LessThan(b.account.FullInitMarginReq) {
		return &kernelerr.MarginCall{
			AvailableFunds: b.account.FullAvailableFunds.String(),
			InitMarginReq:  b.account.FullInitMarginReq.String(),
		}
	}
	return nil
}

// Liquidate implements §4.4.10: for every open position, synthesize a
// closing trade at last-known-price ± slippage with zero fees, and drive
// it through the same account/position update path as a normal
// execution so the ledger reflects a flat final state. Not an error
// condition (LiquidationOnExit is informational, §7).
func (b *SimulatedBroker) Liquidate(at time.Time) []types.Trade {
	tickers := make([]string, 0, len(b.positions))
	for ticker := range b.positions {
		tickers = append(tickers, ticker)
	}

	trades := make([]types.Trade, 0, len(tickers))
	for _, ticker := range tickers {
		pos := b.positions[ticker]
		symbol, ok := b.symbols[ticker]
		if !ok {
			continue
		}
		closingAction := types.Sell
		if pos.Action == types.BrokerSell {
			closingAction = types.Cover
		}
		fillPrice, err := b.FillPrice(symbol, closingAction)
		if err != nil {
			b.logger.WithError(err).WithField("ticker", ticker).Warn("liquidation fill price failed")
			continue
		}
		q, _ := signedQuantity(closingAction, pos.Quantity.Abs())
		trade := types.Trade{
			TimestampNanos: at.UnixNano(),
			Ticker:         ticker,
			Quantity:       q,
			AvgPrice:       fillPrice,
			TradeValue:     fillPrice.Mul(symbol.PriceMultiplier()).Mul(q).Mul(decimal.NewFromInt(symbol.QuantityMultiplier())).Round(4),
			TradeCost:      decimal.Zero,
			Action:         closingAction,
			Fees:           decimal.Zero,
		}

		if err := b.OnExecution(types.ExecutionEvent{Timestamp: at, TradeDetails: trade, Action: closingAction, Symbol: symbol}); err != nil {
			b.logger.WithError(err).WithField("ticker", ticker).Warn("liquidation execution failed")
			continue
		}
		trades = append(trades, trade)
	}
	return trades
}

// publishState pushes the broker's authoritative position/account state
// for ticker to the portfolio server (§4.2). Called after every mutation
// the broker makes, from the event loop's consumer goroutine.
func (b *SimulatedBroker) publishState(ticker string) {
	if b.portfolio == nil {
		return
	}
	if pos, ok := b.positions[ticker]; ok {
		b.portfolio.UpdatePosition(ticker, pos)
	} else {
		b.portfolio.UpdatePosition(ticker, types.Position{})
	}
	b.portfolio.UpdateAccountDetails(b.account)
}

// UpdateEquityValue recomputes net liquidation and records an equity
// point on every market tick in backtest mode (§4.6 dispatch table).
func (b *SimulatedBroker) UpdateEquityValue(at time.Time) {
	b.recomputeNetLiquidation()
	if b.perf != nil {
		b.perf.UpdateEquity(ledger.EquityPoint{TimestampNanos: at.UnixNano(), EquityValue: b.account.NetLiquidation})
	}
}
