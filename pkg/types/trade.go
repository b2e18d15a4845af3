package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade is an execution record produced on each fill and appended to the
// performance ledger. Equality for dedup purposes is defined only on
// (TradeID, LegID) — see Equal (§4.5, §3).
type Trade struct {
	TradeID        int64
	LegID          int64
	TimestampNanos int64
	Ticker         string
	// Quantity is signed: positive for BUY-side fills, negative for
	// SELL-side fills.
	Quantity   decimal.Decimal
	AvgPrice   decimal.Decimal
	TradeValue decimal.Decimal
	TradeCost  decimal.Decimal
	Action     Action
	Fees       decimal.Decimal
}

// Validate enforces trade_id >= 1, leg_id >= 1, price > 0 (§8).
func (t Trade) Validate() error {
	if t.TradeID < 1 {
		return fmt.Errorf("%w: trade_id must be >= 1, got %d", ErrDomainValidation, t.TradeID)
	}
	if t.LegID < 1 {
		return fmt.Errorf("%w: leg_id must be >= 1, got %d", ErrDomainValidation, t.LegID)
	}
	if !t.AvgPrice.IsPositive() {
		return fmt.Errorf("%w: trade price must be > 0, got %s", ErrDomainValidation, t.AvgPrice)
	}
	return nil
}

// Equal defines trade-log dedup equality: only (TradeID, LegID) matter.
func (t Trade) Equal(other Trade) bool {
	return t.TradeID == other.TradeID && t.LegID == other.LegID
}
