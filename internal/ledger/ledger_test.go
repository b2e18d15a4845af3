package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/midassystems/midastrader-sub000/pkg/types"
)

func TestUpdateTradesDedupsByTradeAndLegID(t *testing.T) {
	l := New(nil)
	trade := types.Trade{TradeID: 1, LegID: 1, Ticker: "AAPL", AvgPrice: decimal.NewFromInt(100)}
	l.UpdateTrades(trade)
	l.UpdateTrades(trade)

	summary := l.Freeze()
	assert.Len(t, summary.Trades, 1)
}

func TestUpdateTradesDistinctLegsBothKept(t *testing.T) {
	l := New(nil)
	l.UpdateTrades(types.Trade{TradeID: 1, LegID: 1, Ticker: "AAPL", AvgPrice: decimal.NewFromInt(100)})
	l.UpdateTrades(types.Trade{TradeID: 1, LegID: 2, Ticker: "MSFT", AvgPrice: decimal.NewFromInt(200)})

	summary := l.Freeze()
	assert.Len(t, summary.Trades, 2)
}

func TestUpdateEquityDedupsByTimestampAndValue(t *testing.T) {
	l := New(nil)
	point := EquityPoint{TimestampNanos: 1000, EquityValue: decimal.NewFromInt(10000)}
	l.UpdateEquity(point)
	l.UpdateEquity(point)
	l.UpdateEquity(EquityPoint{TimestampNanos: 1000, EquityValue: decimal.NewFromInt(10001)})

	summary := l.Freeze()
	assert.Len(t, summary.EquityCurve, 2)
}

func TestSignalsNeverDeduped(t *testing.T) {
	l := New(nil)
	sig := types.SignalSnapshot{TradeCapital: 1000}
	l.UpdateSignals(sig)
	l.UpdateSignals(sig)

	summary := l.Freeze()
	assert.Len(t, summary.Signals, 2)
}

func TestFreezeStopsFurtherAppends(t *testing.T) {
	l := New(nil)
	l.UpdateTrades(types.Trade{TradeID: 1, LegID: 1, AvgPrice: decimal.NewFromInt(1)})
	first := l.Freeze()

	l.UpdateTrades(types.Trade{TradeID: 2, LegID: 1, AvgPrice: decimal.NewFromInt(2)})
	second := l.Freeze()

	assert.Equal(t, first.Trades, second.Trades, "ledger is frozen after the first Freeze call")
}
