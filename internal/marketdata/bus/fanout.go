// Package bus broadcasts the candle stream to multiple consumers (evaluation
// loop, persistence writer, API cache) without letting a slow consumer stall
// the pipeline: full subscriber channels drop, never block.
package bus

import (
	"context"
	"log"
	"sync"

	"smc-enginev1/internal/model"
)

// FanOut broadcasts candles from one input channel to N subscriber channels.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Candle
	bufSize int

	// OnDrop is called with the slow subscriber's index when a candle is
	// dropped for it (optional).
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for subscriber channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new subscriber channel. Subscribe before
// Run starts; channels are closed when Run returns.
func (f *FanOut) Subscribe() <-chan model.Candle {
	ch := make(chan model.Candle, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers. Blocks until ctx is
// cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Candle) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- candle:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[bus] subscriber %d full, dropping candle %s", i, candle.Key())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) pair for one subscriber channel,
// reported as saturation by the metrics layer.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns the stat for each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
