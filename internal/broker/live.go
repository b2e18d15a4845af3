package broker

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/portfolio"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Gateway is the §6.2 live broker contract: connect, obtain the next
// valid order id, place an order, and disconnect. Concrete
// implementations (e.g. an IB/CEX adapter) deliver execution and order
// status callbacks asynchronously over internal/livebus; Gateway itself
// only covers the synchronous request half of that contract.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error
	NextValidOrderID() int64
	PlaceOrder(ctx context.Context, event types.OrderEvent) error
}

// LiveBroker adapts a Gateway plus the live event transport into the
// same Broker-shaped surface internal/engine drives uniformly across
// modes. Unlike SimulatedBroker, it never computes a fill itself: the
// exchange is the source of truth, and execution/portfolio/account
// callbacks arrive asynchronously over internal/livebus (§6.2) — the
// fields below only ever mirror what those callbacks report. Grounded on
// the teacher's internal/exchange client wiring, generalized from a
// single named venue to an injected Gateway.
type LiveBroker struct {
	gateway   Gateway
	symbols   map[string]types.Symbol
	portfolio *portfolio.Server
	perf      *ledger.Ledger

	mu  sync.Mutex
	ctx context.Context

	logger *logrus.Entry
}

// NewLiveBroker constructs a LiveBroker around gateway. portfolio and
// perf may be nil in configurations that only exercise order submission
// (e.g. tests).
func NewLiveBroker(gateway Gateway, symbols map[string]types.Symbol, portfolioServer *portfolio.Server, perfLedger *ledger.Ledger, logger *logrus.Entry) *LiveBroker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LiveBroker{
		gateway:   gateway,
		symbols:   symbols,
		portfolio: portfolioServer,
		perf:      perfLedger,
		ctx:       context.Background(),
		logger:    logger.WithField("component", "live_broker"),
	}
}

// Connect opens the gateway session (§6.2) and retains ctx for the
// lifetime of the session, since the engine.Broker interface's OnOrder
// carries no context parameter of its own.
func (b *LiveBroker) Connect(ctx context.Context) error {
	if err := b.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("live broker connect: %w", err)
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
	b.logger.Info("broker gateway connected")
	return nil
}

// Disconnect closes the gateway session.
func (b *LiveBroker) Disconnect() error {
	return b.gateway.Disconnect()
}

// OnOrder submits event to the gateway. This does not mutate any local
// position/account state: the authoritative updates arrive later as
// asynchronous callbacks delivered over internal/livebus and routed back
// through internal/portfolio (§6.2). It does register a placeholder
// ActiveOrder against the portfolio server's active-order gate (§4.2,
// §4.3 step 1) under a locally synthesized perm_id, since the venue's
// own perm_id only arrives later on the order-status callback this
// repo doesn't yet subscribe to (§2b: "in disconnected/offline-test
// live-adapter stand-ins, locally synthesized perm_ids").
func (b *LiveBroker) OnOrder(event types.OrderEvent) error {
	if event.Order.OrderType == "" {
		return fmt.Errorf("live broker: order missing order_type")
	}
	b.mu.Lock()
	ctx := b.ctx
	id := b.gateway.NextValidOrderID()
	b.mu.Unlock()

	permID := synthesizePermID()

	b.logger.WithFields(logrus.Fields{
		"order_id": id,
		"perm_id":  permID,
		"ticker":   event.Symbol.Ticker(),
		"action":   event.Action,
	}).Info("submitting order to broker gateway")

	if err := b.gateway.PlaceOrder(ctx, event); err != nil {
		return fmt.Errorf("live broker place order: %w", err)
	}

	if b.portfolio != nil {
		b.portfolio.UpdateOrders(types.ActiveOrder{
			PermID:    permID,
			ClientID:  id,
			OrderID:   id,
			Ticker:    event.Symbol.Ticker(),
			SecType:   event.Symbol.SecurityType(),
			Exchange:  event.Symbol.Venue(),
			Action:    event.Action,
			OrderType: event.Order.OrderType,
			TotalQty:  event.Order.Quantity,
			Status:    types.Submitted,
		})
	}
	return nil
}

// synthesizePermID derives a perm_id from a fresh UUID4 for tracking an
// order locally until the venue's own order-status callback reports the
// real one. The UUID's first 8 bytes are read as a big-endian int64 and
// negated if negative, since ActiveOrder.PermID is a signed int64 and
// the map-key/log value only needs to be unique, not to round-trip the
// full UUID.
func synthesizePermID() int64 {
	id := uuid.New()
	v := int64(binary.BigEndian.Uint64(id[:8]))
	if v < 0 {
		v = -v
	}
	return v
}

// OnExecution records a fill report from the gateway. It only appends to
// the performance ledger and does not touch internal/portfolio. No
// account-value or portfolio-update callbacks are subscribed by
// internal/livebus, so nothing in this repository writes the exchange's
// position/account state into portfolio.Server.
func (b *LiveBroker) OnExecution(event types.ExecutionEvent) error {
	if b.perf != nil {
		b.perf.UpdateTrades(event.TradeDetails)
	}
	b.logger.WithFields(logrus.Fields{
		"ticker":   event.Symbol.Ticker(),
		"trade_id": event.TradeDetails.TradeID,
	}).Info("execution report received")
	return nil
}

// EODUpdate records the portfolio server's current account snapshot as
// an account-log entry and an equity-curve point. Unlike SimulatedBroker,
// it performs no mark-to-market math of its own; the snapshot is
// whatever was last passed to portfolio.Server.UpdateAccountDetails.
func (b *LiveBroker) EODUpdate(event types.EODEvent) error {
	if b.perf == nil || b.portfolio == nil {
		return nil
	}
	account := b.portfolio.Account()
	b.perf.UpdateAccountLog(account)
	b.perf.UpdateEquity(ledger.EquityPoint{TimestampNanos: event.CalendarDate.UnixNano(), EquityValue: account.NetLiquidation})
	return nil
}

// UpdateEquityValue is a no-op in live mode: the engine only calls it on
// MarketEvent dispatch when running in Backtest mode (§4.6).
func (b *LiveBroker) UpdateEquityValue(at time.Time) {}

// Liquidate submits a closing market order for every position the
// portfolio mirror currently reports open, best-effort. Unlike
// SimulatedBroker.Liquidate, it cannot return realized trades
// synchronously: the exchange confirms each closing fill later over the
// same execution-report callback as any other order, so this always
// returns an empty slice (§7: LiquidationOnExit is informational, not an
// error, even when some closing orders fail to submit).
func (b *LiveBroker) Liquidate(at time.Time) []types.Trade {
	if b.portfolio == nil {
		return nil
	}
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	for ticker, pos := range b.portfolio.Positions() {
		symbol, ok := b.symbols[ticker]
		if !ok {
			b.logger.WithField("ticker", ticker).Warn("liquidation skipped: ticker not in symbol map")
			continue
		}
		closingAction := types.Sell
		if pos.Action == types.BrokerSell {
			closingAction = types.Cover
		}
		order, err := types.NewMarketOrder(closingAction, pos.Quantity.Abs())
		if err != nil {
			b.logger.WithError(err).WithField("ticker", ticker).Warn("liquidation order construction failed")
			continue
		}
		event := types.OrderEvent{Timestamp: at, Action: closingAction, Symbol: symbol, Order: order}
		if err := b.gateway.PlaceOrder(ctx, event); err != nil {
			b.logger.WithError(err).WithField("ticker", ticker).Warn("liquidation order submission failed")
		}
	}
	return nil
}
