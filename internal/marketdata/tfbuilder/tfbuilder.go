// Package tfbuilder provides an incremental timeframe resampler.
// It consumes finalized M1 candles and maintains forming higher-TF candle
// states updated in O(1) per candle per TF. When a TF bucket closes (a candle
// arrives in a new bucket), the previous TF candle is finalized and emitted.
//
// Forex markets gap over weekends: a Friday-evening bucket is finalized by
// the first Sunday-evening candle, which is hours ahead of it. Forward gaps
// of any size are normal; only candles arriving behind the forming bucket are
// rejected as stale.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"smc-enginev1/internal/model"
)

// tfState holds the forming candle state for one (symbol, TF) pair.
type tfState struct {
	bucket  int64 // bucket start = ts - ts%tf (Unix seconds)
	candle  model.Candle
	started bool
}

// Builder resamples M1 candles into multiple timeframes. Designed for a
// single consumer goroutine.
type Builder struct {
	tfs []int // enabled TF durations in seconds

	// states[tfIdx][symbol] → forming candle
	states []map[string]*tfState

	// Staleness validation: reject candles older than the forming bucket by
	// more than this. Zero disables the check.
	StaleTolerance time.Duration

	// Metrics hooks (optional)
	OnTFCandle    func(c model.Candle) // finalized TF candle
	OnStaleCandle func()
}

// New creates a builder with the given timeframes (in seconds).
func New(tfs []int) *Builder {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 8)
	}
	return &Builder{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Minute,
	}
}

// DefaultTFs is the institutional pipeline's timeframe set: M5 drives the
// evaluation loop, M15 feeds swing detection, H1 is kept for operators.
func DefaultTFs() []int {
	return []int{model.TFM5, model.TFM15, model.TFH1}
}

// Run consumes M1 candles from candleCh, resamples them, and sends TF candles
// (forming snapshots and finalized) to outCh. Blocks until ctx is cancelled.
func (b *Builder) Run(ctx context.Context, candleCh <-chan model.Candle, outCh chan<- model.Candle) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(outCh)
			return
		case c, ok := <-candleCh:
			if !ok {
				b.flushAll(outCh)
				return
			}
			b.Process(c, outCh)
		}
	}
}

// Process handles a single M1 candle against all enabled TFs. Hot path,
// O(1) per TF. Exported so the backtest pipeline can call it inline without
// channel overhead.
func (b *Builder) Process(c model.Candle, outCh chan<- model.Candle) {
	if c.Forming {
		return
	}
	ts := c.TS.Unix()

	for i, tf := range b.tfs {
		tf64 := int64(tf)
		bucket := ts - (ts % tf64)

		st, exists := b.states[i][c.Symbol]

		// Reject candles behind the forming bucket. Forward gaps (weekends,
		// feed outages) are allowed: they finalize the stale bucket below.
		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > b.StaleTolerance {
				if b.OnStaleCandle != nil {
					b.OnStaleCandle()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			st.candle.Forming = false
			emit(outCh, st.candle)
			if b.OnTFCandle != nil {
				b.OnTFCandle(st.candle)
			}
			exists = false
		}

		if !exists {
			newState := &tfState{
				bucket:  bucket,
				started: true,
				candle: model.Candle{
					Symbol:  c.Symbol,
					TF:      tf,
					TS:      time.Unix(bucket, 0).UTC(),
					Open:    c.Open,
					High:    c.High,
					Low:     c.Low,
					Close:   c.Close,
					Volume:  c.Volume,
					Count:   1,
					Forming: true,
				},
			}
			b.states[i][c.Symbol] = newState
			// Emit immediately so live consumers see the forming candle.
			emit(outCh, newState.candle)
			continue
		}

		// Same bucket: merge OHLCV.
		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume
		fc.Count++

		// Forming snapshot; copy so the receiver never races the next merge.
		snap := *fc
		emit(outCh, snap)
	}
}

// FlushAll finalizes and emits all forming candles. The backtest pipeline
// calls this after the last historical candle so trailing buckets close.
func (b *Builder) FlushAll(outCh chan<- model.Candle) {
	b.flushAll(outCh)
}

func (b *Builder) flushAll(outCh chan<- model.Candle) {
	for i := range b.tfs {
		for sym, st := range b.states[i] {
			if st.started {
				st.candle.Forming = false
				emit(outCh, st.candle)
			}
			delete(b.states[i], sym)
		}
	}
}

// emit sends a candle downstream. Non-blocking to avoid deadlocks.
func emit(outCh chan<- model.Candle, c model.Candle) {
	select {
	case outCh <- c:
	default:
		log.Printf("[tfbuilder] outCh full, dropping TF candle %s ts=%v", c.Key(), c.TS)
	}
}

// TFs returns the enabled timeframes.
func (b *Builder) TFs() []int {
	return b.tfs
}
