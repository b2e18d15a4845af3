package livebus

import (
	"context"
	"sync/atomic"

	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Gateway adapts Bus into internal/broker.Gateway's synchronous request
// half (§6.2): the bus connection is already established by New, so
// Connect/Disconnect here are no-ops over the shared Bus's lifecycle,
// and order placement is simply a publish onto the ORDERS stream.
// Execution reports flow back independently via Bus.SubscribeExecutions;
// no order-status or account callbacks are subscribed by this package.
type Gateway struct {
	bus    *Bus
	nextID int64
}

// NewGateway wraps bus as a broker.Gateway.
func NewGateway(bus *Bus) *Gateway {
	return &Gateway{bus: bus}
}

// Connect is a no-op: the NATS connection is already live by the time a
// Gateway exists, established by livebus.New.
func (g *Gateway) Connect(ctx context.Context) error { return nil }

// Disconnect is a no-op for the same reason; Bus.Close tears down the
// shared connection once, at process shutdown, not per-gateway.
func (g *Gateway) Disconnect() error { return nil }

// NextValidOrderID hands out a monotonically increasing id local to this
// process. The exchange-assigned order id (if the venue has its own) is
// recovered later from the order-status callback, not from this method.
func (g *Gateway) NextValidOrderID() int64 {
	return atomic.AddInt64(&g.nextID, 1)
}

// PlaceOrder publishes event onto the ORDERS stream for the broker
// gateway connector on the other end to pick up and submit to the venue.
func (g *Gateway) PlaceOrder(ctx context.Context, event types.OrderEvent) error {
	return g.bus.PublishOrder(event)
}
