package persistence

import (
	"context"

	"github.com/midassystems/midastrader-sub000/internal/ledger"
)

// SummaryPersister adapts Client to internal/engine.Persister's single
// PersistSummary(ledger.Summary) error method. The engine is mode-
// agnostic about where a run's summary goes; this adapter is what
// decides backtest vs. live-session endpoint and supplies the run
// parameters and context the engine's interface has no room for.
type SummaryPersister struct {
	client     *Client
	ctx        context.Context
	mode       SummaryMode
	parameters map[string]interface{}
}

// SummaryMode selects which persistence endpoint a run's summary lands
// on (§6.1: /api/backtest/ vs /api/live_session/).
type SummaryMode int

const (
	SummaryBacktest SummaryMode = iota
	SummaryLiveSession
)

// NewSummaryPersister builds a Persister bound to a fixed context and a
// run's parameters, for the duration of a single cmd/ entry point's Run.
func NewSummaryPersister(client *Client, ctx context.Context, mode SummaryMode, parameters map[string]interface{}) *SummaryPersister {
	return &SummaryPersister{client: client, ctx: ctx, mode: mode, parameters: parameters}
}

// PersistSummary implements internal/engine.Persister.
func (p *SummaryPersister) PersistSummary(summary ledger.Summary) error {
	if p.mode == SummaryLiveSession {
		return p.client.CreateLiveSessionSummary(p.ctx, p.parameters, summary)
	}
	return p.client.CreateBacktestSummary(p.ctx, p.parameters, summary)
}
