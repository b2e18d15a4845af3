package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

type fakeFetcher struct {
	bars map[string][]types.BarRecord
}

func (f *fakeFetcher) FetchBars(ctx context.Context, tickers []string, start, end time.Time, policy config.MissingValuePolicy) (map[string][]types.BarRecord, error) {
	return f.bars, nil
}

func bar(ticker string, at time.Time) types.BarRecord {
	return types.BarRecord{
		Ticker:         ticker,
		TimestampNanos: at.UnixNano(),
		Open:           decimal.NewFromInt(100),
		High:           decimal.NewFromInt(101),
		Low:            decimal.NewFromInt(99),
		Close:          decimal.NewFromInt(100),
		Volume:         10,
	}
}

func TestHistoricalDataSourceOrdersAndCoalescesByTimestamp(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	fetcher := &fakeFetcher{bars: map[string][]types.BarRecord{
		"AAPL": {bar("AAPL", t1), bar("AAPL", t0)},
		"MSFT": {bar("MSFT", t0)},
	}}

	src, err := NewHistoricalDataSource(context.Background(), fetcher, []string{"AAPL", "MSFT"}, t0, t1.Add(time.Minute), config.PolicyDrop)
	require.NoError(t, err)

	data, ts, ok, err := src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(t0))
	assert.Len(t, data, 2)
	assert.Equal(t, 1, src.Remaining())

	data, ts, ok, err = src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, ts.Equal(t1))
	assert.Len(t, data, 1)
	assert.Equal(t, 0, src.Remaining())

	_, _, ok, err = src.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
