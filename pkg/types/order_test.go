package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewMarketOrder(t *testing.T) {
	_, err := NewMarketOrder(Long, decimal.NewFromInt(0))
	assert.ErrorIs(t, err, ErrDomainValidation, "zero quantity must be rejected")

	o, err := NewMarketOrder(Long, decimal.NewFromInt(10))
	assert.NoError(t, err)
	assert.Equal(t, OrderTypeMarket, o.OrderType)
}

func TestNewLimitOrderRequiresPositivePrice(t *testing.T) {
	_, err := NewLimitOrder(Sell, decimal.NewFromInt(10), decimal.Zero)
	assert.ErrorIs(t, err, ErrDomainValidation)

	o, err := NewLimitOrder(Sell, decimal.NewFromInt(10), decimal.NewFromInt(100))
	assert.NoError(t, err)
	assert.True(t, o.LimitPrice.Equal(decimal.NewFromInt(100)))
}

func TestNewStopLossOrderRequiresPositiveAux(t *testing.T) {
	_, err := NewStopLossOrder(Sell, decimal.NewFromInt(10), decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrDomainValidation)

	o, err := NewStopLossOrder(Sell, decimal.NewFromInt(10), decimal.NewFromInt(95))
	assert.NoError(t, err)
	assert.True(t, o.AuxPrice.Equal(decimal.NewFromInt(95)))
}

func TestTradeInstructionValidate(t *testing.T) {
	tests := []struct {
		name    string
		ti      TradeInstruction
		wantErr bool
	}{
		{"valid", TradeInstruction{Ticker: "AAPL", Action: Long, TradeID: 1, LegID: 1, Weight: 0.5}, false},
		{"trade_id zero", TradeInstruction{Ticker: "AAPL", Action: Long, TradeID: 0, LegID: 1, Weight: 0.5}, true},
		{"leg_id zero", TradeInstruction{Ticker: "AAPL", Action: Long, TradeID: 1, LegID: 0, Weight: 0.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ti.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDomainValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTradeEqualityIsTradeAndLegIDOnly(t *testing.T) {
	a := Trade{TradeID: 1, LegID: 1, Ticker: "AAPL", AvgPrice: decimal.NewFromInt(50)}
	b := Trade{TradeID: 1, LegID: 1, Ticker: "MSFT", AvgPrice: decimal.NewFromInt(999)}
	c := Trade{TradeID: 1, LegID: 2, Ticker: "AAPL", AvgPrice: decimal.NewFromInt(50)}

	assert.True(t, a.Equal(b), "trade_id+leg_id match is sufficient for dedup equality")
	assert.False(t, a.Equal(c), "differing leg_id must not be equal")
}
