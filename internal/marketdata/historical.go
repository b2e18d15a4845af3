// Package marketdata supplies the two concrete internal/engine.DataSource
// and Connector/Book-update implementations the spec treats as external
// collaborators (§1, §6): a historical replay driver for backtest mode,
// fetched through internal/persistence, and an illustrative live feed
// stub for live mode. Grounded on the teacher's services/binance and
// services/bybit packages for both halves.
package marketdata

import (
	"context"
	"sort"
	"time"

	"github.com/midassystems/midastrader-sub000/internal/config"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// BarFetcher is the subset of persistence.Client the historical data
// source needs, accepted as an interface so tests can supply an
// in-memory double instead of a live persistence adapter.
type BarFetcher interface {
	FetchBars(ctx context.Context, tickers []string, start, end time.Time, policy config.MissingValuePolicy) (map[string][]types.BarRecord, error)
}

// tick is one timestamp's worth of per-ticker records, the unit the
// engine's Book.Update consumes (§4.1).
type tick struct {
	timestamp time.Time
	records   map[string]types.Record
}

// HistoricalDataSource replays bars fetched from the persistence adapter
// in timestamp order, implementing internal/engine.DataSource. It
// never blocks once built — all bars are fetched up front via
// persistence.Client.FetchBars, mirroring the teacher's
// backtest-via-pandas-dataframe pattern generalized to the kernel's own
// BarRecord/QuoteRecord sum type.
type HistoricalDataSource struct {
	ticks []tick
	pos   int
}

// NewHistoricalDataSource fetches bars for tickers over [start, end) and
// assembles them into a chronological sequence of ticks. Bars sharing an
// identical timestamp across tickers are coalesced into one tick, so a
// multi-symbol strategy observes a consistent cross-sectional snapshot
// per Next() call (§4.1's "per-instrument snapshot at a monotonic
// timestamp", generalized across tickers).
func NewHistoricalDataSource(ctx context.Context, client BarFetcher, tickers []string, start, end time.Time, policy config.MissingValuePolicy) (*HistoricalDataSource, error) {
	byTicker, err := client.FetchBars(ctx, tickers, start, end, policy)
	if err != nil {
		return nil, err
	}

	byTimestamp := make(map[int64]map[string]types.Record)
	for ticker, bars := range byTicker {
		for _, bar := range bars {
			records, ok := byTimestamp[bar.TimestampNanos]
			if !ok {
				records = make(map[string]types.Record)
				byTimestamp[bar.TimestampNanos] = records
			}
			records[ticker] = bar
		}
	}

	nanos := make([]int64, 0, len(byTimestamp))
	for n := range byTimestamp {
		nanos = append(nanos, n)
	}
	sort.Slice(nanos, func(i, j int) bool { return nanos[i] < nanos[j] })

	ticks := make([]tick, 0, len(nanos))
	for _, n := range nanos {
		ticks = append(ticks, tick{timestamp: time.Unix(0, n).UTC(), records: byTimestamp[n]})
	}

	return &HistoricalDataSource{ticks: ticks}, nil
}

// Next returns the next chronological tick, or ok=false once every tick
// has been consumed (§4.6 step "On data exhaustion...").
func (d *HistoricalDataSource) Next() (map[string]types.Record, time.Time, bool, error) {
	if d.pos >= len(d.ticks) {
		return nil, time.Time{}, false, nil
	}
	t := d.ticks[d.pos]
	d.pos++
	return t.records, t.timestamp, true, nil
}

// Remaining reports how many ticks are left, useful for progress logging
// at the cmd/backtest entry point.
func (d *HistoricalDataSource) Remaining() int {
	return len(d.ticks) - d.pos
}
