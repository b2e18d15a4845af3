package persistence

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// ToSymbol builds a concrete pkg/types.Symbol from a resolved wire
// record. Only equities and futures are supported — the two security
// types the rest of the kernel actually exercises; options and indices
// carry fields (strike, expiration, right, benchmark name/asset class)
// the persistence service's symbol endpoint doesn't surface in this
// adapter, so resolving one returns an error rather than guessing.
func (w SymbolWire) ToSymbol() (types.Symbol, error) {
	currency := types.Currency(w.Currency)
	venue := types.Venue(w.Venue)

	fees, err := decimal.NewFromString(w.FeesPerUnit)
	if err != nil {
		return nil, fmt.Errorf("parse fees_per_unit for %s: %w", w.Ticker, err)
	}

	switch types.SecurityType(w.SecurityType) {
	case types.SecurityStock:
		return types.NewEquity(w.Ticker, currency, venue, fees, w.Industry)
	case types.SecurityFuture:
		margin, err := decimal.NewFromString(w.InitialMargin)
		if err != nil {
			return nil, fmt.Errorf("parse initial_margin for %s: %w", w.Ticker, err)
		}
		priceMult, err := decimal.NewFromString(w.PriceMultiplier)
		if err != nil {
			return nil, fmt.Errorf("parse price_multiplier for %s: %w", w.Ticker, err)
		}
		tick, err := decimal.NewFromString(w.TickSize)
		if err != nil {
			return nil, fmt.Errorf("parse tick_size for %s: %w", w.Ticker, err)
		}
		return types.NewFuture(w.Ticker, currency, venue, fees, margin, w.QuantityMultiplier, priceMult, tick, time.Time{}, false)
	default:
		return nil, fmt.Errorf("unsupported security_type %q for %s", w.SecurityType, w.Ticker)
	}
}
