package types

import "github.com/shopspring/decimal"

// Position is the broker's record of a single ticker's open exposure
// (§3). A Position exists only while Quantity != 0; the broker removes the
// map entry once net quantity reaches zero (§4.4.6).
type Position struct {
	Action             BrokerSide
	Quantity           decimal.Decimal // signed; sign matches direction
	AvgCost            decimal.Decimal
	QuantityMultiplier int64
	PriceMultiplier    decimal.Decimal
	InitialMargin      decimal.Decimal
	UnrealizedPnL      decimal.Decimal
	TotalCost          decimal.Decimal
	MarketValue        decimal.Decimal
}

// Equal is full structural equality over every field, used by the
// portfolio server's UpdatePosition idempotence check (§4.2, §8): an
// update that would store an identical Position is a no-op.
func (p Position) Equal(other Position) bool {
	return p.Action == other.Action &&
		p.Quantity.Equal(other.Quantity) &&
		p.AvgCost.Equal(other.AvgCost) &&
		p.QuantityMultiplier == other.QuantityMultiplier &&
		p.PriceMultiplier.Equal(other.PriceMultiplier) &&
		p.InitialMargin.Equal(other.InitialMargin) &&
		p.UnrealizedPnL.Equal(other.UnrealizedPnL) &&
		p.TotalCost.Equal(other.TotalCost) &&
		p.MarketValue.Equal(other.MarketValue)
}

// IsFlat reports whether the position has been fully closed.
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero()
}
