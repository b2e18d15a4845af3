package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

type fakeCache struct {
	mu    sync.Mutex
	store map[string]string
	gets  int
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]string)}
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.store[key]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.store[key] = value
	return nil
}

func newTestBar(ticker string, at time.Time) types.BarRecord {
	return types.BarRecord{
		Ticker:         ticker,
		TimestampNanos: at.UnixNano(),
		Open:           decimal.NewFromInt(100),
		High:           decimal.NewFromInt(101),
		Low:            decimal.NewFromInt(99),
		Close:          decimal.NewFromInt(100),
		Volume:         1000,
	}
}

func TestBulkInsertBarsBatchesAtFourHundred(t *testing.T) {
	var batchSizes []int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		var batch []barWire
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		mu.Lock()
		batchSizes = append(batchSizes, len(batch))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, nil, 0, nil)

	bars := make([]types.BarRecord, 900)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = newTestBar("AAPL", base.Add(time.Duration(i)*time.Minute))
	}

	err := client.BulkInsertBars(context.Background(), bars)
	require.NoError(t, err)
	assert.Equal(t, []int{400, 400, 100}, batchSizes)
}

func TestFetchBarsPaginatesAndCaches(t *testing.T) {
	var requestCount int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestCount++
		mu.Unlock()
		wires := []barWire{
			{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
				Open: "100.0000", Close: "101.0000", High: "102.0000", Low: "99.0000", Volume: 500},
		}
		_ = json.NewEncoder(w).Encode(wires)
	}))
	defer server.Close()

	cache := newFakeCache()
	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, cache, time.Minute, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 120) // spans 3 pages of 50 days

	bars, err := client.FetchBars(context.Background(), []string{"AAPL"}, start, end, config.PolicyDrop)
	require.NoError(t, err)
	assert.Len(t, bars["AAPL"], 3)
	assert.Equal(t, 3, requestCount)

	// Re-fetching the identical window should be served entirely from cache.
	bars2, err := client.FetchBars(context.Background(), []string{"AAPL"}, start, end, config.PolicyDrop)
	require.NoError(t, err)
	assert.Len(t, bars2["AAPL"], 3)
	assert.Equal(t, 3, requestCount, "second fetch must not hit the service again")
}

func TestFetchBarsFillForwardRejectsEmptySeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]barWire{})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, nil, 0, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 10)

	_, err := client.FetchBars(context.Background(), []string{"AAPL"}, start, end, config.PolicyFillForward)
	require.Error(t, err)
	assert.ErrorIs(t, err, kernelerr.DomainValidation)
}

func TestNonTwoXXResponseIsExternalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad ticker"))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, nil, 0, nil)
	err := client.CreateSession(context.Background(), 1)

	require.Error(t, err)
	var extErr *kernelerr.ExternalFailure
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, http.StatusBadRequest, extErr.StatusCode)
}

func TestRetriesOnFiveHundredThenSucceeds(t *testing.T) {
	var attempts int
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, nil, 0, nil)
	client.retry = kernelerr.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := client.CreateSession(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCreateBacktestSummaryPostsFrozenLedger(t *testing.T) {
	var received runSummaryWire
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/backtest/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, APIKey: "secret"}, nil, 0, nil)

	l := ledger.New(nil)
	l.UpdateTrades(types.Trade{TradeID: 1, LegID: 1, Ticker: "AAPL", AvgPrice: decimal.NewFromInt(100), Action: types.Long})
	summary := l.Freeze()

	err := client.CreateBacktestSummary(context.Background(), map[string]interface{}{"tickers": []string{"AAPL"}}, summary)
	require.NoError(t, err)
	assert.Len(t, received.Trades, 1)
	assert.Equal(t, int64(1), received.Trades[0].TradeID)
}
