package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"smc-enginev1/internal/model"
)

// BufferedWriter wraps a Writer with a circuit breaker. During circuit-open
// state, candle writes are buffered locally and flushed when the circuit
// closes again, so a Redis outage costs latency, not data.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded candles awaiting flush
	maxBuf int

	// Callbacks (optional)
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
// maxBufferSize <= 0 defaults to 10000; when full, the oldest write is dropped.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush on circuit close, chaining any existing callback.
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteCandle writes a candle through the circuit breaker. If the circuit is
// open, the closed candle is buffered; forming snapshots are dropped since a
// newer one always follows.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writeCandle(bw.ctx, c)
		return nil // writeCandle logs errors internally
	})
	if err == ErrCircuitOpen {
		if !c.Forming {
			bw.bufferWrite(c)
		}
		return nil // buffered, not lost
	}
	return err
}

// Run consumes candles from candleCh through the circuit breaker. Satisfies
// model.CandleWriter. Blocks until ctx is cancelled or candleCh is closed.
func (bw *BufferedWriter) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			bw.WriteCandle(c)
		}
	}
}

func (bw *BufferedWriter) bufferWrite(c model.Candle) {
	data, err := json.Marshal(c)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full — drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, data := range toFlush {
		var c model.Candle
		if json.Unmarshal(data, &c) == nil {
			bw.writer.writeCandle(bw.ctx, c)
			flushed++
		}
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

// Close closes the underlying writer. Satisfies model.CandleWriter.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
