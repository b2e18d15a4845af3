package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountSnapshot is the broker's ledger-visible account state (§3).
// The live-only fields are zero-valued in backtest mode; they exist so a
// single struct can serialize both a backtest and a live account
// snapshot to the persistence adapter's session mirror (§6.1).
type AccountSnapshot struct {
	Timestamp          time.Time
	FullAvailableFunds decimal.Decimal
	FullInitMarginReq  decimal.Decimal
	NetLiquidation     decimal.Decimal
	UnrealizedPnL      decimal.Decimal

	// Live-only.
	FullMaintMarginReq decimal.Decimal
	ExcessLiquidity    decimal.Decimal
	Currency           Currency
	BuyingPower        decimal.Decimal
	FuturesPnL         decimal.Decimal
	TotalCashBalance   decimal.Decimal
}

// NewStartingAccount builds the initial account snapshot for a run:
// full_available_funds and net_liquidation seeded with starting capital,
// everything else zero (§4.4).
func NewStartingAccount(startingCapital decimal.Decimal, at time.Time) AccountSnapshot {
	return AccountSnapshot{
		Timestamp:          at,
		FullAvailableFunds: startingCapital,
		FullInitMarginReq:  decimal.Zero,
		NetLiquidation:     startingCapital,
		UnrealizedPnL:      decimal.Zero,
	}
}
