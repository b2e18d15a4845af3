package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPositionEqualIsFullStructural(t *testing.T) {
	a := Position{Action: BrokerBuy, Quantity: decimal.NewFromInt(10), AvgCost: decimal.NewFromInt(2000)}
	b := a
	assert.True(t, a.Equal(b))

	b.UnrealizedPnL = decimal.NewFromInt(1)
	assert.False(t, a.Equal(b), "any differing field must break equality")
}

func TestPositionIsFlat(t *testing.T) {
	assert.True(t, Position{Quantity: decimal.Zero}.IsFlat())
	assert.False(t, Position{Quantity: decimal.NewFromInt(1)}.IsFlat())
}
