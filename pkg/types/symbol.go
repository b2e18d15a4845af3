// Package types holds the domain model shared across the kernel: symbols,
// orders, trades, positions, accounts and the event sum type that flows
// through the engine's queue.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SecurityType distinguishes the four symbol variants.
type SecurityType string

const (
	SecurityStock  SecurityType = "STOCK"
	SecurityFuture SecurityType = "FUTURE"
	SecurityOption SecurityType = "OPTION"
	SecurityIndex  SecurityType = "INDEX"
)

// Currency is the settlement currency of a symbol.
type Currency string

const (
	USD Currency = "USD"
	CAD Currency = "CAD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

// Venue is the exchange/venue a symbol trades on.
type Venue string

const (
	VenueNASDAQ  Venue = "NASDAQ"
	VenueNYSE    Venue = "NYSE"
	VenueCME     Venue = "CME"
	VenueCBOT    Venue = "CBOT"
	VenueCBOE    Venue = "CBOE"
	VenueSMART   Venue = "SMART"
	VenueIndexEx Venue = "INDEX"
)

// Right is an option's call/put flag.
type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

// AssetClass categorizes an index symbol for reporting.
type AssetClass string

const (
	AssetClassEquity AssetClass = "EQUITY"
	AssetClassRates  AssetClass = "RATES"
	AssetClassFX     AssetClass = "FX"
	AssetClassOther  AssetClass = "OTHER"
)

// Symbol is the common interface implemented by every symbol variant.
// Lifetime: constructed once at startup and never mutated afterward.
type Symbol interface {
	Ticker() string
	SecurityType() SecurityType
	Currency() Currency
	Venue() Venue
	FeesPerUnit() decimal.Decimal
	InitialMargin() decimal.Decimal
	QuantityMultiplier() int64
	PriceMultiplier() decimal.Decimal
	DataTicker() string
	// TickSize returns the per-unit tick size used by the fill-price
	// slippage calculation (§4.4.1): 1 for equities/options/indices,
	// the contract's own tick size for futures.
	TickSize() decimal.Decimal
}

// base carries the fields common to every symbol variant (§3).
type base struct {
	ticker             string
	secType            SecurityType
	currency           Currency
	venue              Venue
	feesPerUnit        decimal.Decimal
	initialMargin      decimal.Decimal
	quantityMultiplier int64
	priceMultiplier    decimal.Decimal
	dataTicker         string
}

func (b base) Ticker() string                    { return b.ticker }
func (b base) SecurityType() SecurityType         { return b.secType }
func (b base) Currency() Currency                 { return b.currency }
func (b base) Venue() Venue                       { return b.venue }
func (b base) FeesPerUnit() decimal.Decimal        { return b.feesPerUnit }
func (b base) InitialMargin() decimal.Decimal      { return b.initialMargin }
func (b base) QuantityMultiplier() int64           { return b.quantityMultiplier }
func (b base) PriceMultiplier() decimal.Decimal    { return b.priceMultiplier }
func (b base) DataTicker() string {
	if b.dataTicker == "" {
		return b.ticker
	}
	return b.dataTicker
}

func (b base) validate() error {
	if b.ticker == "" {
		return fmt.Errorf("%w: ticker must not be empty", ErrDomainValidation)
	}
	if b.feesPerUnit.IsNegative() {
		return fmt.Errorf("%w: %s fees_per_unit must be >= 0, got %s", ErrDomainValidation, b.ticker, b.feesPerUnit)
	}
	if b.initialMargin.IsNegative() {
		return fmt.Errorf("%w: %s initial_margin must be >= 0, got %s", ErrDomainValidation, b.ticker, b.initialMargin)
	}
	if b.quantityMultiplier < 1 {
		return fmt.Errorf("%w: %s quantity_multiplier must be >= 1, got %d", ErrDomainValidation, b.ticker, b.quantityMultiplier)
	}
	if !b.priceMultiplier.IsPositive() {
		return fmt.Errorf("%w: %s price_multiplier must be > 0, got %s", ErrDomainValidation, b.ticker, b.priceMultiplier)
	}
	return nil
}

// Equity is a cash equity symbol. TickSize is always 1 (§4.4.1).
type Equity struct {
	base
	Industry string
}

// NewEquity constructs an Equity symbol, validating the base invariants.
func NewEquity(ticker string, currency Currency, venue Venue, feesPerUnit decimal.Decimal, industry string) (*Equity, error) {
	e := &Equity{
		base: base{
			ticker:             ticker,
			secType:            SecurityStock,
			currency:           currency,
			venue:              venue,
			feesPerUnit:        feesPerUnit,
			initialMargin:      decimal.Zero,
			quantityMultiplier: 1,
			priceMultiplier:    decimal.NewFromInt(1),
		},
		Industry: industry,
	}
	if err := e.base.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Equity) TickSize() decimal.Decimal { return decimal.NewFromInt(1) }

// Future is a futures contract symbol.
type Future struct {
	base
	TickSizeValue       decimal.Decimal
	MinPriceFluctuation decimal.Decimal
	LastTradeDate       time.Time
	Continuous          bool
	Industry            string
	ProductCode         string
	ProductName         string
	ContractUnits       string
}

// NewFuture constructs a Future symbol, validating the base invariants plus
// tick_size > 0 (§3).
func NewFuture(ticker string, currency Currency, venue Venue, feesPerUnit, initialMargin decimal.Decimal,
	quantityMultiplier int64, priceMultiplier, tickSize decimal.Decimal, lastTradeDate time.Time, continuous bool) (*Future, error) {
	f := &Future{
		base: base{
			ticker:             ticker,
			secType:            SecurityFuture,
			currency:           currency,
			venue:              venue,
			feesPerUnit:        feesPerUnit,
			initialMargin:      initialMargin,
			quantityMultiplier: quantityMultiplier,
			priceMultiplier:    priceMultiplier,
		},
		TickSizeValue:       tickSize,
		MinPriceFluctuation: tickSize,
		LastTradeDate:       lastTradeDate,
		Continuous:          continuous,
	}
	if err := f.base.validate(); err != nil {
		return nil, err
	}
	if !f.TickSizeValue.IsPositive() {
		return nil, fmt.Errorf("%w: %s tick_size must be > 0, got %s", ErrDomainValidation, ticker, f.TickSizeValue)
	}
	return f, nil
}

func (f *Future) TickSize() decimal.Decimal { return f.TickSizeValue }

// Option is an options contract symbol. TickSize is always 1, matching
// Equity (the source never specializes tick_size for options).
type Option struct {
	base
	Strike     decimal.Decimal
	Expiration time.Time
	Right      Right
	Underlying string
}

// NewOption constructs an Option symbol, validating the base invariants.
func NewOption(ticker string, currency Currency, venue Venue, feesPerUnit decimal.Decimal,
	strike decimal.Decimal, expiration time.Time, right Right, underlying string) (*Option, error) {
	o := &Option{
		base: base{
			ticker:             ticker,
			secType:            SecurityOption,
			currency:           currency,
			venue:              venue,
			feesPerUnit:        feesPerUnit,
			initialMargin:      decimal.Zero,
			quantityMultiplier: 100,
			priceMultiplier:    decimal.NewFromInt(1),
		},
		Strike:     strike,
		Expiration: expiration,
		Right:      right,
		Underlying: underlying,
	}
	if err := o.base.validate(); err != nil {
		return nil, err
	}
	if right != Call && right != Put {
		return nil, fmt.Errorf("%w: %s right must be CALL or PUT, got %q", ErrDomainValidation, ticker, right)
	}
	return o, nil
}

func (o *Option) TickSize() decimal.Decimal { return decimal.NewFromInt(1) }

// Index is a cash index symbol, non-tradable on its own but usable as a
// strategy reference instrument.
type Index struct {
	base
	Name       string
	AssetClass AssetClass
}

// NewIndex constructs an Index symbol, validating the base invariants.
func NewIndex(ticker string, currency Currency, venue Venue, name string, assetClass AssetClass) (*Index, error) {
	i := &Index{
		base: base{
			ticker:             ticker,
			secType:            SecurityIndex,
			currency:           currency,
			venue:              venue,
			feesPerUnit:        decimal.Zero,
			initialMargin:      decimal.Zero,
			quantityMultiplier: 1,
			priceMultiplier:    decimal.NewFromInt(1),
		},
		Name:       name,
		AssetClass: assetClass,
	}
	if err := i.base.validate(); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *Index) TickSize() decimal.Decimal { return decimal.NewFromInt(1) }

// IsFuture reports whether a Symbol is a futures contract, the one
// distinction the broker's account-update path needs to branch on
// (§4.4.4 vs §4.4.5).
func IsFuture(s Symbol) bool {
	_, ok := s.(*Future)
	return ok
}
