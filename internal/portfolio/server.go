// Package portfolio implements SPEC_FULL.md §4.2: the authoritative
// mirror of account, positions, and active orders consumed by the order
// manager and performance ledger. Grounded on the exact idempotence and
// eviction rules recovered from
// engine/tests/portfolio/test_portfolio_server.py in original_source/
// (the portfolio server's own .py implementation was filtered from the
// retrieval pack), and on the mutex+map authoritative-store idiom from
// the teacher's internal/account/manager.go.
package portfolio

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/observer"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Server is the single authoritative store for positions, account state,
// and active orders. It is written only from the event loop's consumer
// goroutine (§5), so its own mutex exists purely to let read-only
// accessors (GetActiveOrderTickers, Capital) be called safely from other
// goroutines without waiting on the loop.
type Server struct {
	observer.Subject

	mu sync.RWMutex

	positions             map[string]types.Position
	account               types.AccountSnapshot
	capital               decimal.Decimal
	activeOrders          map[int64]types.ActiveOrder // by perm_id
	pendingPositionsUpdate map[string]struct{}

	logger *logrus.Entry
}

// New constructs an empty portfolio server.
func New(logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		positions:              make(map[string]types.Position),
		activeOrders:           make(map[int64]types.ActiveOrder),
		pendingPositionsUpdate: make(map[string]struct{}),
		logger:                 logger.WithField("component", "portfolio_server"),
	}
}

// UpdatePosition replaces the stored Position for ticker. If an
// identical Position (full structural equality) is already stored, this
// is a no-op: no store, no log, no notify (§4.2, §8 idempotence).
func (s *Server) UpdatePosition(ticker string, pos types.Position) {
	s.mu.Lock()
	if existing, ok := s.positions[ticker]; ok && existing.Equal(pos) {
		s.mu.Unlock()
		return
	}
	if pos.IsFlat() {
		delete(s.positions, ticker)
	} else {
		s.positions[ticker] = pos
	}
	delete(s.pendingPositionsUpdate, ticker)
	s.mu.Unlock()

	s.logger.WithField("ticker", ticker).Infof("\nPositions Updated: \n %s: %+v \n", ticker, pos)
	s.Notify(observer.PositionUpdate, pos)
}

// UpdateAccountDetails replaces the account snapshot and sets
// capital = full_available_funds. Unlike UpdatePosition, every call
// notifies and logs — accounts have no idempotence gate (§4.2).
func (s *Server) UpdateAccountDetails(account types.AccountSnapshot) {
	s.mu.Lock()
	s.account = account
	s.capital = account.FullAvailableFunds
	s.mu.Unlock()

	s.logger.Infof("\nAccount Updated: \n FullAvailableFunds : %s \n", account.FullAvailableFunds.String())
	s.Notify(observer.AccountDetailUpdate, account)
}

// UpdateOrders upserts by perm_id. On Filled, the order is evicted and
// its ticker added to pending_positions_update; on Cancelled, evicted
// with no pending-update side effect; otherwise upserted and kept. Every
// call logs and notifies (§4.2).
func (s *Server) UpdateOrders(order types.ActiveOrder) {
	s.mu.Lock()
	switch order.Status {
	case types.Filled:
		delete(s.activeOrders, order.PermID)
		s.pendingPositionsUpdate[order.Ticker] = struct{}{}
	case types.Cancelled:
		delete(s.activeOrders, order.PermID)
	default:
		s.activeOrders[order.PermID] = order
	}
	s.mu.Unlock()

	s.logger.Infof("\nOrder Updated: \n %+v \n", order)
	s.Notify(observer.OrderUpdate, order)
}

// GetActiveOrderTickers returns the union of tickers with a currently
// active order and tickers awaiting a position update after a fill
// (§4.2) — this is the gate the order manager consults for
// deduplication (§4.3 step 1).
func (s *Server) GetActiveOrderTickers() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.activeOrders)+len(s.pendingPositionsUpdate))
	for _, order := range s.activeOrders {
		out[order.Ticker] = struct{}{}
	}
	for ticker := range s.pendingPositionsUpdate {
		out[ticker] = struct{}{}
	}
	return out
}

// Position returns the current position for ticker, if any.
func (s *Server) Position(ticker string) (types.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[ticker]
	return pos, ok
}

// Positions returns a snapshot copy of every currently open position,
// keyed by ticker. Used by the live broker at shutdown to enumerate what
// needs liquidating without holding the server's lock across the call.
func (s *Server) Positions() map[string]types.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.Position, len(s.positions))
	for ticker, pos := range s.positions {
		out[ticker] = pos
	}
	return out
}

// Account returns the current account snapshot.
func (s *Server) Account() types.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Capital returns the most recently recorded full_available_funds.
func (s *Server) Capital() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capital
}
