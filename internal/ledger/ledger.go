// Package ledger implements SPEC_FULL.md §4.5: the append-only
// performance ledger (trades, signals, equity curve, account log),
// grounded on the dedup/append semantics of
// engine/performance/base_manager.py in original_source/.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// EquityPoint is one sample on the equity curve, deduplicated by the
// (Timestamp, EquityValue) tuple (§4.5, §8).
type EquityPoint struct {
	TimestampNanos int64
	EquityValue    decimal.Decimal
}

func (e EquityPoint) equal(other EquityPoint) bool {
	return e.TimestampNanos == other.TimestampNanos && e.EquityValue.Equal(other.EquityValue)
}

// Ledger accumulates the four append-only collections named in §4.5.
// Trades dedup by (trade_id, leg_id); equity points dedup by
// (timestamp, equity_value); signals and account snapshots are always
// appended verbatim.
type Ledger struct {
	mu sync.Mutex

	trades      []types.Trade
	signals     []types.SignalSnapshot
	equityCurve []EquityPoint
	accountLog  []types.AccountSnapshot

	frozen bool
	logger *logrus.Entry
}

// New constructs an empty Ledger.
func New(logger *logrus.Entry) *Ledger {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ledger{logger: logger.WithField("component", "performance_ledger")}
}

// UpdateTrades appends trade unless an entry with the same
// (trade_id, leg_id) is already present.
func (l *Ledger) UpdateTrades(trade types.Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	for _, existing := range l.trades {
		if existing.Equal(trade) {
			return
		}
	}
	l.trades = append(l.trades, trade)
	l.logger.WithFields(logrus.Fields{"trade_id": trade.TradeID, "leg_id": trade.LegID}).Info("trade recorded")
}

// UpdateSignals appends a SignalSnapshot verbatim — signals are never
// deduplicated, even if emitted twice (§4.5).
func (l *Ledger) UpdateSignals(signal types.SignalSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	l.signals = append(l.signals, signal)
}

// UpdateEquity appends point unless an identical (timestamp, value) pair
// is already present.
func (l *Ledger) UpdateEquity(point EquityPoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	for _, existing := range l.equityCurve {
		if existing.equal(point) {
			return
		}
	}
	l.equityCurve = append(l.equityCurve, point)
}

// UpdateAccountLog appends an account snapshot verbatim.
func (l *Ledger) UpdateAccountLog(account types.AccountSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return
	}
	l.accountLog = append(l.accountLog, account)
}

// Freeze stops further appends and returns a Summary ready to hand to
// the persistence adapter (§4.5, §6.1). Calling Freeze twice is a no-op;
// the first Summary is authoritative.
func (l *Ledger) Freeze() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = true
	return Summary{
		Trades:      append([]types.Trade(nil), l.trades...),
		Signals:     append([]types.SignalSnapshot(nil), l.signals...),
		EquityCurve: append([]EquityPoint(nil), l.equityCurve...),
		AccountLog:  append([]types.AccountSnapshot(nil), l.accountLog...),
	}
}

// Summary is the frozen, immutable view of a run's ledger, serialized by
// the persistence adapter to POST /api/backtest/ or POST /api/live_session/.
type Summary struct {
	Trades      []types.Trade
	Signals     []types.SignalSnapshot
	EquityCurve []EquityPoint
	AccountLog  []types.AccountSnapshot
}

// String is a compact human summary, useful in final run logging.
func (s Summary) String() string {
	return fmt.Sprintf("trades=%d signals=%d equity_points=%d account_snapshots=%d",
		len(s.Trades), len(s.Signals), len(s.EquityCurve), len(s.AccountLog))
}
