package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/internal/portfolio"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

type fakeGateway struct {
	connected bool
	nextID    int64
	placed    []types.OrderEvent
	placeErr  error
}

func (g *fakeGateway) Connect(ctx context.Context) error { g.connected = true; return nil }
func (g *fakeGateway) Disconnect() error                 { g.connected = false; return nil }
func (g *fakeGateway) NextValidOrderID() int64           { g.nextID++; return g.nextID }
func (g *fakeGateway) PlaceOrder(ctx context.Context, event types.OrderEvent) error {
	g.placed = append(g.placed, event)
	return g.placeErr
}

func newAAPL(t *testing.T) types.Symbol {
	t.Helper()
	sym, err := types.NewEquity("AAPL", types.USD, types.VenueNASDAQ, decimal.Zero, "TECHNOLOGY")
	require.NoError(t, err)
	return sym
}

func TestLiveBrokerOnOrderSubmitsToGateway(t *testing.T) {
	gw := &fakeGateway{}
	b := NewLiveBroker(gw, nil, nil, nil, nil)
	require.NoError(t, b.Connect(context.Background()))

	order, err := types.NewMarketOrder(types.Long, decimal.NewFromInt(10))
	require.NoError(t, err)
	event := types.OrderEvent{Action: types.Long, Symbol: newAAPL(t), Order: order}

	require.NoError(t, b.OnOrder(event))
	require.Len(t, gw.placed, 1)
	assert.Equal(t, "AAPL", gw.placed[0].Symbol.Ticker())
}

func TestLiveBrokerOnExecutionAppendsLedgerOnly(t *testing.T) {
	gw := &fakeGateway{}
	perf := ledger.New(nil)
	b := NewLiveBroker(gw, nil, nil, perf, nil)

	sym := newAAPL(t)
	trade := types.Trade{TradeID: 1, LegID: 1, Ticker: "AAPL", Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100)}
	err := b.OnExecution(types.ExecutionEvent{Timestamp: time.Now(), TradeDetails: trade, Action: types.Long, Symbol: sym})
	require.NoError(t, err)

	summary := perf.Freeze()
	require.Len(t, summary.Trades, 1)
	assert.Equal(t, int64(1), summary.Trades[0].TradeID)
}

func TestLiveBrokerOnOrderRegistersActiveOrderWithSynthesizedPermID(t *testing.T) {
	gw := &fakeGateway{}
	server := portfolio.New(nil)
	b := NewLiveBroker(gw, nil, server, nil, nil)
	require.NoError(t, b.Connect(context.Background()))

	order, err := types.NewMarketOrder(types.Long, decimal.NewFromInt(10))
	require.NoError(t, err)
	event := types.OrderEvent{Action: types.Long, Symbol: newAAPL(t), Order: order}

	require.NoError(t, b.OnOrder(event))

	tickers := server.GetActiveOrderTickers()
	_, ok := tickers["AAPL"]
	assert.True(t, ok, "expected AAPL to be gated as having an active order")
}

func TestSynthesizePermIDProducesDistinctNonNegativeValues(t *testing.T) {
	first := synthesizePermID()
	second := synthesizePermID()
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, first, int64(0))
	assert.GreaterOrEqual(t, second, int64(0))
}

func TestLiveBrokerLiquidateSubmitsClosingOrdersForOpenPositions(t *testing.T) {
	gw := &fakeGateway{}
	server := portfolio.New(nil)
	sym := newAAPL(t)
	server.UpdatePosition("AAPL", types.Position{Action: types.BrokerBuy, Quantity: decimal.NewFromInt(10)})

	b := NewLiveBroker(gw, map[string]types.Symbol{"AAPL": sym}, server, nil, nil)
	require.NoError(t, b.Connect(context.Background()))

	trades := b.Liquidate(time.Now())
	assert.Empty(t, trades)
	require.Len(t, gw.placed, 1)
	assert.Equal(t, types.Sell, gw.placed[0].Action)
}
