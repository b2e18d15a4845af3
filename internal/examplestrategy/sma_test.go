package examplestrategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/strategy"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

type fakeQueue struct {
	pushed []types.Event
}

func (q *fakeQueue) Push(e types.Event) { q.pushed = append(q.pushed, e) }

func tick(ticker string, price int64) types.MarketEvent {
	return types.MarketEvent{
		Timestamp: time.Now(),
		Data: map[string]types.Record{
			ticker: types.BarRecord{Ticker: ticker, Close: decimal.NewFromInt(price), Open: decimal.NewFromInt(price), High: decimal.NewFromInt(price), Low: decimal.NewFromInt(price)},
		},
	}
}

func TestSMACrossoverEmitsSignalOnCrossover(t *testing.T) {
	q := &fakeQueue{}
	s := NewSMACrossover(2, 4)
	require.NoError(t, s.Initialize(strategy.Context{Queue: q}))

	prices := []int64{100, 100, 100, 100, 110, 120}
	for _, p := range prices {
		require.NoError(t, s.OnMarketData(tick("AAPL", p)))
	}

	require.NotEmpty(t, q.pushed)
	signal, ok := q.pushed[len(q.pushed)-1].(types.SignalEvent)
	require.True(t, ok)
	require.Len(t, signal.TradeInstructions, 1)
	assert.Equal(t, types.Long, signal.TradeInstructions[0].Action)
}
