package engine

import "github.com/midassystems/midastrader-sub000/pkg/types"

// Queue is the kernel's single FIFO event channel (§4.6, §5). Backtest
// mode constructs it buffered so the data driver never blocks pushing a
// MarketEvent; live mode constructs it unbuffered since producers run on
// their own goroutines and the consumer is always ready between
// dispatches.
type Queue struct {
	ch chan types.Event
}

// NewQueue constructs a queue with the given channel buffer (0 for
// unbuffered).
func NewQueue(buffer int) *Queue {
	return &Queue{ch: make(chan types.Event, buffer)}
}

// Push enqueues an event. Safe for concurrent callers (§5: multi-producer
// / single-consumer).
func (q *Queue) Push(e types.Event) {
	q.ch <- e
}

// TryPop drains one event without blocking; ok is false if the queue is
// currently empty.
func (q *Queue) TryPop() (types.Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return nil, false
	}
}

// C exposes the receive side for the live driver's blocking select loop.
func (q *Queue) C() <-chan types.Event {
	return q.ch
}
