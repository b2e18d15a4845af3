package orderbook

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/observer"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

type fakeQueue struct {
	pushed []types.Event
}

func (q *fakeQueue) Push(e types.Event) { q.pushed = append(q.pushed, e) }

type fakeObserver struct {
	calls []types.MarketEvent
}

func (o *fakeObserver) Update(kind observer.EventType, payload any) {
	if kind != observer.MarketEventNotice {
		return
	}
	o.calls = append(o.calls, payload.(types.MarketEvent))
}

func TestUpdateRejectsEmptyData(t *testing.T) {
	ob := New(&fakeQueue{}, nil)
	err := ob.Update(map[string]types.Record{}, time.Now())
	assert.ErrorIs(t, err, kernelerr.DomainValidation)
}

func TestUpdatePublishesAfterStateChange(t *testing.T) {
	q := &fakeQueue{}
	obs := &fakeObserver{}
	ob := New(q, nil)
	ob.Attach(obs, observer.MarketEventNotice)

	now := time.Now()
	err := ob.Update(map[string]types.Record{
		"AAPL": types.BarRecord{Ticker: "AAPL", Close: decimal.NewFromInt(150)},
	}, now)
	require.NoError(t, err)

	price, err := ob.CurrentPrice("AAPL")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))

	require.Len(t, q.pushed, 1)
	require.Len(t, obs.calls, 1)
	assert.Equal(t, now, ob.LastUpdated())
}

func TestCurrentPriceUnknownTicker(t *testing.T) {
	ob := New(&fakeQueue{}, nil)
	_, err := ob.CurrentPrice("MSFT")
	var unknownErr *kernelerr.UnknownTicker
	assert.ErrorAs(t, err, &unknownErr)
}

func TestCurrentPriceQuoteIsMid(t *testing.T) {
	ob := New(&fakeQueue{}, nil)
	require.NoError(t, ob.Update(map[string]types.Record{
		"AAPL": types.QuoteRecord{Ticker: "AAPL", Ask: decimal.NewFromInt(101), Bid: decimal.NewFromInt(99)},
	}, time.Now()))

	price, err := ob.CurrentPrice("AAPL")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(100)))
}

func TestCurrentPrices(t *testing.T) {
	ob := New(&fakeQueue{}, nil)
	require.NoError(t, ob.Update(map[string]types.Record{
		"AAPL": types.BarRecord{Ticker: "AAPL", Close: decimal.NewFromInt(150)},
		"MSFT": types.BarRecord{Ticker: "MSFT", Close: decimal.NewFromInt(300)},
	}, time.Now()))

	prices := ob.CurrentPrices()
	assert.Len(t, prices, 2)
	assert.True(t, prices["AAPL"].Equal(decimal.NewFromInt(150)))
}
