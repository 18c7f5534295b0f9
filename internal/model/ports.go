package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the engine from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of them.

// CandleWriter persists closed candles.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// CandleReader reads historical candles for session bootstrap and replay.
type CandleReader interface {
	// ReadCandles reads closed candles for a symbol and TF after a timestamp.
	ReadCandles(symbol string, tf int, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// EventSink receives the structured events the engine emits (state
// transitions, sweep/FVG detections, lock activity). The storage format is
// the sink's concern.
type EventSink interface {
	RecordEvent(ev EngineEvent) error
}

// SnapshotStore reads and writes engine status snapshots as raw JSON.
// Using []byte avoids a model→institutional→model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}
