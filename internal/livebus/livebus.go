// Package livebus implements the NATS JetStream transport §2b and §6.2
// describe for live mode: the kernel's order/execution traffic with the
// broker gateway, and live market data from the exchange adapters.
// Grounded directly on the teacher's pkg/nats/client.go — the stream
// bootstrap, reconnect/error handler wiring, and publish/subscribe shape
// are carried over verbatim in style; only the subjects and payload
// types change, from the teacher's raw exchange order/position/market
// messages to the kernel's typed Event sum (§3).
package livebus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// Queue is the subset of the kernel's event queue the bus pushes
// decoded events onto.
type Queue interface {
	Push(types.Event)
}

// StreamConfig defines one JetStream stream to provision at startup,
// mirroring the teacher's pkg/nats.StreamConfig.
type StreamConfig struct {
	Name      string
	Subjects  []string
	Retention nats.RetentionPolicy
	MaxAge    time.Duration
	MaxMsgs   int64
}

// Config holds NATS connection settings, resolved from internal/config.
type Config struct {
	URL      string
	ClientID string
	Streams  []StreamConfig
}

// DefaultStreams provisions the two streams the kernel needs: ORDERS for
// the order/execution request-response traffic with the live broker
// gateway, and MARKET for live price ticks.
func DefaultStreams() []StreamConfig {
	return []StreamConfig{
		{
			Name:      "ORDERS",
			Subjects:  []string{"orders.>", "executions.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			MaxMsgs:   1_000_000,
		},
		{
			Name:      "MARKET",
			Subjects:  []string{"market.>"},
			Retention: nats.InterestPolicy,
			MaxAge:    time.Hour,
		},
	}
}

// Bus wraps a NATS JetStream connection, resolving incoming payloads
// against the kernel's static symbol map and pushing decoded events onto
// the engine queue.
type Bus struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	symbols map[string]types.Symbol
	queue   Queue
	logger  *logrus.Entry
}

// New connects to NATS, provisions cfg.Streams (creating or updating
// each), and returns a Bus ready to publish/subscribe.
func New(cfg Config, symbols map[string]types.Symbol, queue Queue, logger *logrus.Entry) (*Bus, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "livebus")

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Error("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.WithError(err).Error("nats error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "nats connect", Cause: err}
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, &kernelerr.ExternalFailure{Operation: "nats jetstream", Cause: err}
	}

	bus := &Bus{conn: conn, js: js, symbols: symbols, queue: queue, logger: logger}
	if err := bus.initStreams(cfg.Streams); err != nil {
		conn.Close()
		return nil, err
	}
	return bus, nil
}

func (b *Bus) initStreams(streams []StreamConfig) error {
	for _, s := range streams {
		streamCfg := &nats.StreamConfig{
			Name:      s.Name,
			Subjects:  s.Subjects,
			Retention: s.Retention,
			MaxAge:    s.MaxAge,
			MaxMsgs:   s.MaxMsgs,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}
		if _, err := b.js.StreamInfo(s.Name); err == nil {
			if _, err := b.js.UpdateStream(streamCfg); err != nil {
				return &kernelerr.ExternalFailure{Operation: "nats stream update " + s.Name, Cause: err}
			}
		} else {
			if _, err := b.js.AddStream(streamCfg); err != nil {
				return &kernelerr.ExternalFailure{Operation: "nats stream create " + s.Name, Cause: err}
			}
		}
	}
	return nil
}

// Close tears down the NATS connection.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// orderWire is the JSON payload for an OrderEvent published to the live
// broker gateway. Symbol is carried as a ticker, not the full types.Symbol
// interface, since the receiving side already holds the same symbol map.
type orderWire struct {
	Timestamp time.Time    `json:"timestamp"`
	TradeID   int64        `json:"trade_id"`
	LegID     int64        `json:"leg_id"`
	Action    types.Action `json:"action"`
	Ticker    string       `json:"ticker"`
	Order     types.Order  `json:"order"`
}

// PublishOrder marshals an OrderEvent and publishes it to the gateway's
// order subject, keyed by ticker.
func (b *Bus) PublishOrder(event types.OrderEvent) error {
	wire := orderWire{
		Timestamp: event.Timestamp,
		TradeID:   event.TradeID,
		LegID:     event.LegID,
		Action:    event.Action,
		Ticker:    event.Symbol.Ticker(),
		Order:     event.Order,
	}
	subject := fmt.Sprintf("orders.%s", wire.Ticker)
	return b.publish(subject, wire)
}

// executionWire is the JSON payload for an ExecutionEvent delivered by
// the live broker gateway as a fill callback.
type executionWire struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    types.Action `json:"action"`
	Ticker    string       `json:"ticker"`
	Trade     types.Trade  `json:"trade"`
}

// SubscribeExecutions listens for fill callbacks on "executions.>",
// resolves each payload's ticker against the bus's symbol map, and
// pushes a decoded types.ExecutionEvent onto the queue.
func (b *Bus) SubscribeExecutions() (*nats.Subscription, error) {
	return b.subscribe("executions.>", func(data []byte) error {
		var wire executionWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		symbol, ok := b.symbols[wire.Ticker]
		if !ok {
			return &kernelerr.UnknownTicker{Ticker: wire.Ticker}
		}
		b.queue.Push(types.ExecutionEvent{
			Timestamp:    wire.Timestamp,
			TradeDetails: wire.Trade,
			Action:       wire.Action,
			Symbol:       symbol,
		})
		return nil
	})
}

// marketRecordWire discriminates between the two types.Record variants,
// since Record is an interface and can't round-trip through JSON on its
// own.
type marketRecordWire struct {
	Ticker string             `json:"ticker"`
	Kind   string             `json:"kind"` // "bar" or "quote"
	Bar    *types.BarRecord   `json:"bar,omitempty"`
	Quote  *types.QuoteRecord `json:"quote,omitempty"`
}

type marketWire struct {
	Timestamp time.Time          `json:"timestamp"`
	Records   []marketRecordWire `json:"records"`
}

// SubscribeMarketData listens for live ticks on "market.>" and pushes a
// decoded map[string]types.Record onto handler, which is expected to
// call the order book's Update (so the MarketEvent enqueue happens
// exactly once, from the same place the backtest driver does it).
func (b *Bus) SubscribeMarketData(handler func(data map[string]types.Record, timestamp time.Time) error) (*nats.Subscription, error) {
	return b.subscribe("market.>", func(data []byte) error {
		var wire marketWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		records := make(map[string]types.Record, len(wire.Records))
		for _, rec := range wire.Records {
			switch rec.Kind {
			case "bar":
				if rec.Bar != nil {
					records[rec.Ticker] = *rec.Bar
				}
			case "quote":
				if rec.Quote != nil {
					records[rec.Ticker] = *rec.Quote
				}
			}
		}
		if len(records) == 0 {
			return nil
		}
		return handler(records, wire.Timestamp)
	})
}

func (b *Bus) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := b.js.Publish(subject, data); err != nil {
		return &kernelerr.ExternalFailure{Operation: "nats publish " + subject, Cause: err}
	}
	b.logger.WithField("subject", subject).Debug("published")
	return nil
}

func (b *Bus) subscribe(subject string, handle func(data []byte) error) (*nats.Subscription, error) {
	sub, err := b.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handle(msg.Data); err != nil {
			b.logger.WithError(err).WithField("subject", msg.Subject).Error("livebus handler error")
			return
		}
		_ = msg.Ack()
	}, nats.Durable(fmt.Sprintf("kernel-%s", subject)))
	if err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "nats subscribe " + subject, Cause: err}
	}
	b.logger.WithField("subject", subject).Info("subscribed")
	return sub, nil
}
