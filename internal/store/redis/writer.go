// Package redis publishes the live candle stream, stores engine status
// snapshots, and holds the hot-reloadable strategy config. Redis is the
// fast/ephemeral tier; SQLite remains the durable one.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smc-enginev1/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	snapshotKey      = "smc:status:latest"
	snapshotTTL      = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes candles and engine snapshots to Redis. Satisfies
// model.CandleWriter and model.SnapshotStore.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads candles from candleCh and writes them to Redis.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, candle)
		}
	}
}

// writeCandle publishes one candle. Forming candles go to PubSub only;
// closed candles get the full pipeline (XADD + SET latest + PUBLISH).
func (w *Writer) writeCandle(ctx context.Context, candle model.Candle) {
	jsonData := string(candle.JSON())
	pubsubCh := pubsubChannel(candle.Symbol, candle.TF)

	if candle.Forming {
		w.client.Publish(ctx, pubsubCh, jsonData)
		return
	}

	pipe := w.client.Pipeline()

	// XADD with proportional trimming: keep roughly 3h per stream.
	maxLen := int64(10800/candle.TF) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(candle.Symbol, candle.TF),
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})

	pipe.Set(ctx, latestKey(candle.Symbol, candle.TF), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s: %v", candle.Key(), err)
	}
}

// SaveSnapshotJSON stores the latest engine status snapshot.
func (w *Writer) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	return w.client.Set(ctx, snapshotKey, string(data), snapshotTTL).Err()
}

// ReadLatestSnapshotJSON loads the most recent snapshot. Returns nil, nil
// when none exists.
func (w *Writer) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := w.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return data, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}

func latestKey(symbol string, tf int) string {
	return "candle:latest:" + symbol + ":" + model.Itoa(tf)
}

func streamKey(symbol string, tf int) string {
	return "candle:" + model.Itoa(tf) + "s:" + symbol
}

func pubsubChannel(symbol string, tf int) string {
	return "pub:candle:" + model.Itoa(tf) + "s:" + symbol
}
