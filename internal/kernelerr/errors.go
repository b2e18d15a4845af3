// Package kernelerr implements the error taxonomy of SPEC_FULL.md §7 as
// distinct Go types (DomainValidation is a sentinel value instead), so
// callers can errors.As to the specific kind instead of string-matching
// on messages.
package kernelerr

import (
	"errors"
	"fmt"
)

// DomainValidation is the kernel's own domain-validation sentinel. It is
// a separate value from pkg/types.ErrDomainValidation (same message), so
// errors.Is against one does not match an error wrapping the other.
var DomainValidation = errors.New("domain validation")

// UnknownTicker is returned when a price is requested for a ticker
// absent from the order book. In the order manager this drops the
// basket.
type UnknownTicker struct {
	Ticker string
}

func (e *UnknownTicker) Error() string {
	return fmt.Sprintf("unknown ticker: %s", e.Ticker)
}

// OrderConstructionFailure wraps an invalid action/quantity/price
// combination encountered while building an order from a trade
// instruction. The basket is dropped; logged, not fatal.
type OrderConstructionFailure struct {
	Ticker string
	Cause  error
}

func (e *OrderConstructionFailure) Error() string {
	return fmt.Sprintf("order construction failed for %s: %v", e.Ticker, e.Cause)
}

func (e *OrderConstructionFailure) Unwrap() error { return e.Cause }

// InsufficientCapital marks a basket that failed the feasibility gate
// (§4.3 step 3). Dropped silently with an info log; never returned to a
// caller that would treat it as fatal.
type InsufficientCapital struct {
	Required  string
	Available string
}

func (e *InsufficientCapital) Error() string {
	return fmt.Sprintf("insufficient capital: required %s, available %s", e.Required, e.Available)
}

// MarginCall marks funds < init_margin_req observed after a mark-to-market
// pass. Logged; the engine continues (policy deferred, §4.4.9).
type MarginCall struct {
	AvailableFunds string
	InitMarginReq  string
}

func (e *MarginCall) Error() string {
	return fmt.Sprintf("margin call: available funds %s below required margin %s", e.AvailableFunds, e.InitMarginReq)
}

// StateMachineViolation marks an action incompatible with a position's
// current state (§4.4.11) or an unrecognized action reaching a path that
// only handles BUY/SELL. Always fatal.
type StateMachineViolation struct {
	Ticker  string
	Detail  string
}

func (e *StateMachineViolation) Error() string {
	return fmt.Sprintf("state machine violation on %s: %s", e.Ticker, e.Detail)
}

// ExternalFailure wraps a non-2xx response from the persistence adapter
// or a broker gateway error. Fatal in backtest mode; retried by the live
// adapter and surfaced fatal only after bounded retries.
type ExternalFailure struct {
	Operation  string
	StatusCode int
	Cause      error
}

func (e *ExternalFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("external failure during %s (status %d): %v", e.Operation, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("external failure during %s: status %d", e.Operation, e.StatusCode)
}

func (e *ExternalFailure) Unwrap() error { return e.Cause }

// IsFatal reports whether an error of this taxonomy should terminate the
// run rather than simply be logged and worked around. DomainValidation,
// StateMachineViolation and ExternalFailure are fatal; the rest are not.
func IsFatal(err error) bool {
	var svErr *StateMachineViolation
	var extErr *ExternalFailure
	if errors.As(err, &svErr) || errors.As(err, &extErr) {
		return true
	}
	return errors.Is(err, DomainValidation)
}
