package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BarRecord is an OHLCV observation over an interval (§3).
type BarRecord struct {
	Ticker         string
	TimestampNanos int64
	Open           decimal.Decimal
	High           decimal.Decimal
	Low            decimal.Decimal
	Close          decimal.Decimal
	Volume         int64
}

// Validate enforces the §3 invariants: positive OHLC, non-negative volume.
func (b BarRecord) Validate() error {
	if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
		return fmt.Errorf("%w: %s bar OHLC must all be > 0", ErrDomainValidation, b.Ticker)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s bar volume must be >= 0, got %d", ErrDomainValidation, b.Ticker, b.Volume)
	}
	return nil
}

// QuoteRecord is a top-of-book bid/ask observation (§3).
type QuoteRecord struct {
	Ticker         string
	TimestampNanos int64
	Ask            decimal.Decimal
	AskSize        decimal.Decimal
	Bid            decimal.Decimal
	BidSize        decimal.Decimal
}

// Validate enforces the §3 invariant: ask/bid strictly positive.
func (q QuoteRecord) Validate() error {
	if !q.Ask.IsPositive() || !q.Bid.IsPositive() {
		return fmt.Errorf("%w: %s quote ask/bid must both be > 0", ErrDomainValidation, q.Ticker)
	}
	return nil
}

// Record is implemented by BarRecord and QuoteRecord; the order book
// stores whichever variant a data source pushes, per ticker.
type Record interface {
	isRecord()
}

func (BarRecord) isRecord()   {}
func (QuoteRecord) isRecord() {}

// CurrentPrice extracts the order book's notion of "current price" from a
// Record: close for bars, mid for quotes (§4.1).
func CurrentPrice(r Record) decimal.Decimal {
	switch v := r.(type) {
	case BarRecord:
		return v.Close
	case QuoteRecord:
		return v.Ask.Add(v.Bid).Div(decimal.NewFromInt(2))
	default:
		return decimal.Zero
	}
}
