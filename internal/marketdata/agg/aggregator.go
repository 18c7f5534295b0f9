// Package agg builds 1-minute OHLC candles from a stream of quote ticks.
// Forex feeds carry no traded volume, so candles count ticks instead; the
// mid price (between bid and ask) drives OHLC.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"smc-enginev1/internal/model"
)

const bucketSeconds = int64(model.TFM1)

// candleState holds the in-progress candle for one symbol in the current
// minute bucket.
type candleState struct {
	bucket int64 // Unix second of the bucket start
	candle model.Candle
}

// Aggregator builds M1 candles from ticks. It runs in a single goroutine and
// emits a finalized candle when the minute rolls over.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*candleState // key = symbol

	flushInterval time.Duration

	// OnDroppedTick is called when a late tick is rejected (optional).
	OnDroppedTick func()
}

// New creates an aggregator.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*candleState, 8),
		flushInterval: time.Second, // bucket rollover check frequency
	}
}

// Run consumes ticks from tickCh, aggregates them into M1 candles, and sends
// finalized candles to candleCh. Blocks until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, candleCh chan<- model.Candle) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(candleCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(candleCh)
				return
			}
			a.processTick(tick, candleCh)

		case <-ticker.C:
			// Emit candles whose bucket is strictly in the past even when no
			// fresh tick arrived to roll them over.
			a.flushOld(candleCh)
		}
	}
}

func (a *Aggregator) processTick(tick model.Tick, candleCh chan<- model.Candle) {
	bucket := tick.TS.Unix()
	bucket -= bucket % bucketSeconds
	price := tick.Mid()

	a.mu.Lock()
	defer a.mu.Unlock()

	state, exists := a.states[tick.Symbol]

	if exists && bucket < state.bucket {
		// Late tick, belongs to an already-advanced bucket.
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return
	}

	if exists && bucket > state.bucket {
		a.emit(state, candleCh)
		delete(a.states, tick.Symbol)
		exists = false
	}

	if !exists {
		a.states[tick.Symbol] = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Symbol: tick.Symbol,
				TF:     model.TFM1,
				TS:     time.Unix(bucket, 0).UTC(),
				Open:   price,
				High:   price,
				Low:    price,
				Close:  price,
				Count:  1,
			},
		}
		return
	}

	c := &state.candle
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Count++
}

// flushOld emits candles for any bucket that is strictly in the past.
func (a *Aggregator) flushOld(candleCh chan<- model.Candle) {
	now := time.Now().Unix()
	now -= now % bucketSeconds

	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		if state.bucket < now {
			a.emit(state, candleCh)
			delete(a.states, sym)
		}
	}
}

// flushAll emits all open candles regardless of bucket.
func (a *Aggregator) flushAll(candleCh chan<- model.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		a.emit(state, candleCh)
		delete(a.states, sym)
	}
}

// emit sends a finalized candle. Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *candleState, candleCh chan<- model.Candle) {
	select {
	case candleCh <- state.candle:
	default:
		log.Printf("[agg] candleCh full, dropping candle %s ts=%v", state.candle.Key(), state.candle.TS)
	}
}
