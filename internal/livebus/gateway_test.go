package livebus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayConnectDisconnectAreNoOps(t *testing.T) {
	g := NewGateway(nil)
	require.NoError(t, g.Connect(context.Background()))
	require.NoError(t, g.Disconnect())
}

func TestGatewayNextValidOrderIDIncrements(t *testing.T) {
	g := NewGateway(nil)
	first := g.NextValidOrderID()
	second := g.NextValidOrderID()
	assert.Equal(t, first+1, second)
}
