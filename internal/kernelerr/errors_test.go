package kernelerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unknown ticker not fatal", &UnknownTicker{Ticker: "AAPL"}, false},
		{"insufficient capital not fatal", &InsufficientCapital{Required: "100", Available: "50"}, false},
		{"margin call not fatal", &MarginCall{AvailableFunds: "100", InitMarginReq: "200"}, false},
		{"state machine violation fatal", &StateMachineViolation{Ticker: "AAPL", Detail: "bad transition"}, true},
		{"external failure fatal", &ExternalFailure{Operation: "persist", StatusCode: 500}, true},
		{"unrelated error not fatal", errors.New("something else"), false},
		{"domain validation sentinel fatal", DomainValidation, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestOrderConstructionFailureUnwraps(t *testing.T) {
	cause := errors.New("bad price")
	err := &OrderConstructionFailure{Ticker: "AAPL", Cause: cause}
	assert.ErrorIs(t, err, cause)
}
