package types

import "errors"

// ErrDomainValidation is the sentinel wrapped by every constructor-time
// invariant violation on a symbol, order, trade instruction or event
// (SPEC_FULL.md §7). It is fatal at run start: the caller should treat it
// as a programmer error in symbol/order configuration, not a runtime
// condition to recover from.
var ErrDomainValidation = errors.New("domain validation")
