// Package persistence implements the HTTP JSON adapter to the external
// persistence service (§6.1): symbol lookup, historical bar ingestion
// and retrieval, final run summaries, and the live session state
// mirror. Grounded on client/client.py for the wire contract (paths,
// the Token header scheme, the 400-row bulk-insert batching and the
// ~50-day paginated historical window) and on the teacher's
// services/bybit/client.go for the Go request/response shape — a
// single do() building *http.Request, executing it, and decoding a
// JSON body, used by every exported method. The teacher has no direct
// HTTP-client dependency to reuse here (see SPEC_FULL.md §6.1 and
// DESIGN.md); retries are handled by kernelerr.RetryPolicy rather than
// adding a direct github.com/hashicorp/go-retryablehttp dependency the
// corpus only pulls in indirectly.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/internal/ledger"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

const (
	bulkBatchSize  = 400
	pageWindowDays = 50
	dateLayout     = "2006-01-02"
)

// Config is the adapter's connection configuration, resolved at startup
// from internal/config (base URL) and internal/secrets (API key).
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the persistence adapter. Safe for concurrent use; callers
// from the live broker's account-update path and the engine's
// wrap-up step may both hold a reference.
type Client struct {
	baseURL string
	token   *tokenGuard
	http    *http.Client
	cache   Cache
	cacheTTL time.Duration
	logger  *logrus.Entry
	retry   kernelerr.RetryPolicy
}

// New builds a Client. cache may be nil, in which case GET paths always
// hit the service directly (§6.1: the cache is strictly a front-end,
// never a source of truth).
func New(cfg Config, cache Cache, cacheTTL time.Duration, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		token:    newTokenGuard(cfg.APIKey),
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.WithField("component", "persistence"),
		retry:    kernelerr.DefaultRetryPolicy(),
	}
}

// SetTokenRefresher installs refresh, used to mint a new bearer token
// once the current one (when it's a JWT rather than a static API key)
// is close to expiring. Optional: without one, an expiring JWT is used
// until the service rejects it.
func (c *Client) SetTokenRefresher(refresh TokenRefresher) {
	c.token.SetRefresher(refresh)
}

// do issues one HTTP request and decodes the JSON response body into out
// (if non-nil). Any status outside 200-299 becomes a kernelerr.ExternalFailure.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	full := c.baseURL + path
	if query != nil && len(query) > 0 {
		full += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return &kernelerr.ExternalFailure{Operation: method + " " + path, Cause: err}
	}
	token, err := c.token.Token(ctx)
	if err != nil {
		return &kernelerr.ExternalFailure{Operation: method + " " + path, Cause: err}
	}
	req.Header.Set("Authorization", "Token "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &kernelerr.ExternalFailure{Operation: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &kernelerr.ExternalFailure{Operation: method + " " + path, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &kernelerr.ExternalFailure{
			Operation:  method + " " + path,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response from %s: %w", path, err)
		}
	}
	return nil
}

// doRetrying wraps do with the adapter's retry policy, retrying only on
// ExternalFailure with a 5xx status or no status at all (transport-level
// errors); a 4xx is a permanent failure and never retried.
func (c *Client) doRetrying(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	return c.retry.Do(ctx, func(err error) bool {
		var ext *kernelerr.ExternalFailure
		if !asExternalFailure(err, &ext) {
			return false
		}
		return ext.StatusCode == 0 || ext.StatusCode >= 500
	}, func() error {
		return c.do(ctx, method, path, query, body, out)
	})
}

func asExternalFailure(err error, target **kernelerr.ExternalFailure) bool {
	ext, ok := err.(*kernelerr.ExternalFailure)
	if !ok {
		return false
	}
	*target = ext
	return true
}

// SymbolWire is the resolved-symbol shape the service returns: the base
// fields from client.py's create_equity/create_future/create_option/
// create_index payloads, plus the kernel's own per-contract economics
// (fees, margin, multipliers, tick size) that the original source never
// modeled but pkg/types.Symbol requires. Exported so cmd/ entry points
// can turn a resolved symbol into a concrete types.Symbol without this
// package making that domain decision itself (§1: symbol metadata
// loading is out of scope as a domain here).
type SymbolWire struct {
	Ticker             string `json:"ticker"`
	SecurityType       string `json:"security_type"`
	Currency           string `json:"currency"`
	Venue              string `json:"venue"`
	FeesPerUnit        string `json:"fees_per_unit"`
	InitialMargin      string `json:"initial_margin"`
	QuantityMultiplier int64  `json:"quantity_multiplier"`
	PriceMultiplier    string `json:"price_multiplier"`
	TickSize           string `json:"tick_size"`
	Industry           string `json:"industry,omitempty"`
}

// ResolveSymbol looks up a single ticker. Returns (false, nil) on a 404,
// matching client.py's get_symbol_by_ticker.
func (c *Client) ResolveSymbol(ctx context.Context, ticker string) (SymbolWire, bool, error) {
	var out SymbolWire
	q := url.Values{"ticker": []string{ticker}}
	err := c.doRetrying(ctx, http.MethodGet, "/api/symbols/", q, nil, &out)
	var ext *kernelerr.ExternalFailure
	if asExternalFailure(err, &ext) && ext.StatusCode == http.StatusNotFound {
		return SymbolWire{}, false, nil
	}
	if err != nil {
		return SymbolWire{}, false, err
	}
	return out, true, nil
}

// barWire is one OHLCV row on the wire. Monetary fields are strings with
// 4-decimal rounding (§6.3).
type barWire struct {
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"`
	Open      string `json:"open"`
	Close     string `json:"close"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Volume    int64  `json:"volume"`
}

func toBarWire(b types.BarRecord) barWire {
	ts := time.Unix(0, b.TimestampNanos).UTC()
	return barWire{
		Symbol:    b.Ticker,
		Timestamp: ts.Format(time.RFC3339),
		Open:      b.Open.StringFixed(4),
		Close:     b.Close.StringFixed(4),
		High:      b.High.StringFixed(4),
		Low:       b.Low.StringFixed(4),
		Volume:    b.Volume,
	}
}

// BulkInsertBars posts bars in batches of at most bulkBatchSize rows
// (§6.3). A failure partway through leaves earlier batches committed;
// the caller is expected to treat the whole ingestion as fatal and not
// retry the successful batches again blindly.
func (c *Client) BulkInsertBars(ctx context.Context, bars []types.BarRecord) error {
	for start := 0; start < len(bars); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(bars) {
			end = len(bars)
		}
		batch := make([]barWire, 0, end-start)
		for _, b := range bars[start:end] {
			batch = append(batch, toBarWire(b))
		}
		if err := c.doRetrying(ctx, http.MethodPost, "/api/bardata/bulk_create/", nil, batch, nil); err != nil {
			return err
		}
	}
	return nil
}

// FetchBars retrieves historical bars for tickers over [start, end),
// paginating the request in ~pageWindowDays windows server-side the way
// client.py's get_bar_data does, then applies the missing-value policy
// (§6.4) per ticker.
func (c *Client) FetchBars(ctx context.Context, tickers []string, start, end time.Time, policy config.MissingValuePolicy) (map[string][]types.BarRecord, error) {
	result := make(map[string][]types.BarRecord)

	for cur := start; cur.Before(end); {
		windowEnd := cur.AddDate(0, 0, pageWindowDays)
		if windowEnd.After(end) {
			windowEnd = end
		}
		page, err := c.fetchBarPage(ctx, tickers, cur, windowEnd)
		if err != nil {
			return nil, err
		}
		for ticker, bars := range page {
			result[ticker] = append(result[ticker], bars...)
		}
		cur = windowEnd
	}

	for _, ticker := range tickers {
		adjusted, err := applyMissingValuePolicy(ticker, result[ticker], policy)
		if err != nil {
			return nil, err
		}
		if len(adjusted) > 0 {
			result[ticker] = adjusted
		}
	}
	return result, nil
}

func (c *Client) fetchBarPage(ctx context.Context, tickers []string, start, end time.Time) (map[string][]types.BarRecord, error) {
	key := cacheKey(tickers, start, end)
	if c.cache != nil {
		if cached, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var wires []barWire
			if jsonErr := json.Unmarshal([]byte(cached), &wires); jsonErr == nil {
				return groupBars(wires)
			}
		}
	}

	q := url.Values{
		"tickers":    []string{strings.Join(tickers, ",")},
		"start_date": []string{start.Format(dateLayout)},
		"end_date":   []string{end.Format(dateLayout)},
	}
	var wires []barWire
	if err := c.doRetrying(ctx, http.MethodGet, "/api/bardata/", q, nil, &wires); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if data, err := json.Marshal(wires); err == nil {
			_ = c.cache.Set(ctx, key, string(data), c.cacheTTL)
		}
	}
	return groupBars(wires)
}

func groupBars(wires []barWire) (map[string][]types.BarRecord, error) {
	out := make(map[string][]types.BarRecord)
	for _, w := range wires {
		bar, err := fromBarWire(w)
		if err != nil {
			return nil, err
		}
		out[w.Symbol] = append(out[w.Symbol], bar)
	}
	return out, nil
}

func fromBarWire(w barWire) (types.BarRecord, error) {
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse bar timestamp %q: %w", w.Timestamp, err)
	}
	open, err := decimal.NewFromString(w.Open)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse bar open %q: %w", w.Open, err)
	}
	closePrice, err := decimal.NewFromString(w.Close)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse bar close %q: %w", w.Close, err)
	}
	high, err := decimal.NewFromString(w.High)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse bar high %q: %w", w.High, err)
	}
	low, err := decimal.NewFromString(w.Low)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse bar low %q: %w", w.Low, err)
	}
	return types.BarRecord{
		Ticker:         w.Symbol,
		TimestampNanos: ts.UnixNano(),
		Open:           open,
		High:           high,
		Low:            low,
		Close:          closePrice,
		Volume:         w.Volume,
	}, nil
}

// applyMissingValuePolicy enforces §6.4 for one requested ticker: drop
// removes nothing extra here (the service is the one that omits missing
// rows; drop is the default pass-through), and fill_forward refuses a
// ticker with zero returned rows as a DomainValidation error. The wire
// only ever returns observed bars (never explicit gap markers), and no
// gap inside a non-empty series is filled: bars are returned as received
// under either policy.
func applyMissingValuePolicy(ticker string, bars []types.BarRecord, policy config.MissingValuePolicy) ([]types.BarRecord, error) {
	if policy == config.PolicyFillForward && len(bars) == 0 {
		return nil, fmt.Errorf("%w: fill_forward requires at least one observation for %s", kernelerr.DomainValidation, ticker)
	}
	return bars, nil
}

func cacheKey(tickers []string, start, end time.Time) string {
	return fmt.Sprintf("bardata:%s:%s:%s", strings.Join(tickers, "+"), start.Format(dateLayout), end.Format(dateLayout))
}

// runSummaryWire is the POST body for both /api/backtest/ and
// /api/live_session/: the frozen ledger plus caller-supplied metadata
// (§4.5's "parameters" pass-through, which the kernel never interprets).
type runSummaryWire struct {
	Parameters  map[string]interface{} `json:"parameters"`
	Trades      []types.Trade           `json:"trades"`
	Signals     []types.SignalSnapshot  `json:"signals"`
	EquityCurve []ledger.EquityPoint    `json:"equity_curve"`
	AccountLog  []types.AccountSnapshot `json:"account_log"`
}

// CreateBacktestSummary persists the final ledger for a backtest run.
func (c *Client) CreateBacktestSummary(ctx context.Context, parameters map[string]interface{}, summary ledger.Summary) error {
	body := runSummaryWire{
		Parameters:  parameters,
		Trades:      summary.Trades,
		Signals:     summary.Signals,
		EquityCurve: summary.EquityCurve,
		AccountLog:  summary.AccountLog,
	}
	return c.doRetrying(ctx, http.MethodPost, "/api/backtest/", nil, body, nil)
}

// CreateLiveSessionSummary persists the final ledger for a live run.
func (c *Client) CreateLiveSessionSummary(ctx context.Context, parameters map[string]interface{}, summary ledger.Summary) error {
	body := runSummaryWire{
		Parameters:  parameters,
		Trades:      summary.Trades,
		Signals:     summary.Signals,
		EquityCurve: summary.EquityCurve,
		AccountLog:  summary.AccountLog,
	}
	return c.doRetrying(ctx, http.MethodPost, "/api/live_session/", nil, body, nil)
}

// CreateSession registers a live session's in-memory state mirror on the
// persistence service (§6.1).
func (c *Client) CreateSession(ctx context.Context, sessionID int64) error {
	return c.doRetrying(ctx, http.MethodPost, "/api/sessions/", nil, map[string]int64{"session_id": sessionID}, nil)
}

// DeleteSession tears down a live session's state mirror.
func (c *Client) DeleteSession(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/api/sessions/%s/", strconv.FormatInt(sessionID, 10))
	return c.doRetrying(ctx, http.MethodDelete, path, nil, nil, nil)
}

// PutPositions mirrors the live broker's current position map.
func (c *Client) PutPositions(ctx context.Context, sessionID int64, positions map[string]types.Position) error {
	path := fmt.Sprintf("/api/sessions/%s/positions/", strconv.FormatInt(sessionID, 10))
	return c.doRetrying(ctx, http.MethodPut, path, nil, positions, nil)
}

// PutOrders mirrors the live broker's open-order snapshot.
func (c *Client) PutOrders(ctx context.Context, sessionID int64, orders []types.ActiveOrder) error {
	path := fmt.Sprintf("/api/sessions/%s/orders/", strconv.FormatInt(sessionID, 10))
	return c.doRetrying(ctx, http.MethodPut, path, nil, orders, nil)
}

// PutAccount mirrors the live broker's current account snapshot.
func (c *Client) PutAccount(ctx context.Context, sessionID int64, account types.AccountSnapshot) error {
	path := fmt.Sprintf("/api/sessions/%s/account/", strconv.FormatInt(sessionID, 10))
	return c.doRetrying(ctx, http.MethodPut, path, nil, account, nil)
}
