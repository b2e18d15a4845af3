package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
	"github.com/midassystems/midastrader-sub000/pkg/types"
)

// RecordHandler is called with a ticker's newly observed record. The
// live engine wires this to internal/orderbook.OrderBook.Update (through
// a one-ticker map), the same enqueue point the backtest driver uses, so
// a MarketEvent is only ever pushed from one place (§4.1, §4.6).
type RecordHandler func(ticker string, record types.Record, at time.Time) error

// BinanceKlineFeed is the illustrative live market-data adapter (§1's
// "data-vendor ingestion adapters" are explicitly out of scope as a
// domain, but the kernel still needs *something* wired to its live
// DataSource/Connector contract end-to-end). It streams 1-minute klines
// for a fixed ticker set via go-binance's WsKlineServe, the same call
// the teacher's services/binance/spot/ws_handler.go SubscribeKline uses,
// translating each closed kline into a BarRecord.
type BinanceKlineFeed struct {
	tickers  []string
	interval string
	handler  RecordHandler
	logger   *logrus.Entry

	mu       sync.Mutex
	doneCs   []chan struct{}
	stopCs   []chan struct{}
	running  bool
}

// NewBinanceKlineFeed builds a feed for tickers, streaming candles at
// interval (e.g. "1m").
func NewBinanceKlineFeed(tickers []string, interval string, handler RecordHandler, logger *logrus.Entry) *BinanceKlineFeed {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BinanceKlineFeed{
		tickers:  tickers,
		interval: interval,
		handler:  handler,
		logger:   logger.WithField("component", "marketdata-binance"),
	}
}

// Connect opens one kline stream per ticker. Each stream runs until Disconnect is called
// or the exchange closes it; errors are logged, not fatal, since a
// single dropped stream shouldn't take down a live run (§7's
// ExternalFailure policy leaves retry to the adapter layer).
func (f *BinanceKlineFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}

	for _, ticker := range f.tickers {
		ticker := ticker
		wsHandler := func(event *binance.WsKlineEvent) {
			if !event.Kline.IsFinal {
				return
			}
			bar, err := klineToBar(ticker, event.Kline)
			if err != nil {
				f.logger.WithError(err).WithField("ticker", ticker).Warn("dropping malformed kline")
				return
			}
			at := time.Unix(0, bar.TimestampNanos).UTC()
			if err := f.handler(ticker, bar, at); err != nil {
				f.logger.WithError(err).WithField("ticker", ticker).Error("record handler failed")
			}
		}
		errHandler := func(err error) {
			f.logger.WithError(err).WithField("ticker", ticker).Error("kline stream error")
		}

		doneC, stopC, err := binance.WsKlineServe(ticker, f.interval, wsHandler, errHandler)
		if err != nil {
			return &kernelerr.ExternalFailure{Operation: "binance kline subscribe " + ticker, Cause: err}
		}
		f.doneCs = append(f.doneCs, doneC)
		f.stopCs = append(f.stopCs, stopC)
	}

	f.running = true
	return nil
}

// Disconnect closes every open stream and waits for their done channels.
func (f *BinanceKlineFeed) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	for _, stop := range f.stopCs {
		close(stop)
	}
	for _, done := range f.doneCs {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.doneCs = nil
	f.stopCs = nil
	f.running = false
	return nil
}

func klineToBar(ticker string, k binance.Kline) (types.BarRecord, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse kline open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse kline high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse kline low: %w", err)
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse kline close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return types.BarRecord{}, fmt.Errorf("parse kline volume: %w", err)
	}
	bar := types.BarRecord{
		Ticker:         ticker,
		TimestampNanos: k.EndTime * int64(time.Millisecond),
		Open:           open,
		High:           high,
		Low:            low,
		Close:          closePrice,
		Volume:         volume.IntPart(),
	}
	return bar, bar.Validate()
}

// GenericQuoteFeed is a raw-websocket fallback for venues with no
// go-binance-style client library — a minimal reconnect loop grounded on
// the teacher's services/binance/ws_order_manager.go Connect/readHandler
// split, generalized from its order-update stream to a top-of-book quote
// stream. Deliberately shallow: a fixed reconnect delay, no
// exponential backoff, no auth handshake, since this adapter is
// illustrative by design (§1, §6.2 only specifies the broker gateway's
// contract in depth).
type GenericQuoteFeed struct {
	url      string
	decode   func([]byte) (ticker string, q types.QuoteRecord, err error)
	handler  RecordHandler
	logger   *logrus.Entry

	mu      sync.Mutex
	conn    *websocket.Conn
	stopCh  chan struct{}
}

// NewGenericQuoteFeed builds a feed that dials url and decodes each
// incoming text message with decode.
func NewGenericQuoteFeed(url string, decode func([]byte) (string, types.QuoteRecord, error), handler RecordHandler, logger *logrus.Entry) *GenericQuoteFeed {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &GenericQuoteFeed{
		url:     url,
		decode:  decode,
		handler: handler,
		logger:  logger.WithField("component", "marketdata-generic"),
	}
}

// Connect dials the websocket and starts the read loop.
func (f *GenericQuoteFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return &kernelerr.ExternalFailure{Operation: "websocket dial " + f.url, Cause: err}
	}
	f.conn = conn
	f.stopCh = make(chan struct{})
	go f.readLoop(f.conn, f.stopCh)
	return nil
}

func (f *GenericQuoteFeed) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			f.logger.WithError(err).Warn("websocket read failed, reconnecting")
			time.Sleep(time.Second)
			continue
		}
		ticker, quote, err := f.decode(data)
		if err != nil {
			f.logger.WithError(err).Warn("dropping undecodable message")
			continue
		}
		if err := f.handler(ticker, quote, time.Now().UTC()); err != nil {
			f.logger.WithError(err).WithField("ticker", ticker).Error("record handler failed")
		}
	}
}

// Disconnect closes the connection and stops the read loop.
func (f *GenericQuoteFeed) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	close(f.stopCh)
	err := f.conn.Close()
	f.conn = nil
	return err
}
