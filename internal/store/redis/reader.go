package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smc-enginev1/internal/model"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader provides read access to the candle keys and streams the Writer
// maintains. Used by the API layer and by external consumers.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// LatestCandle reads the latest closed candle for (symbol, tf).
// Returns ok=false when no candle is stored.
func (r *Reader) LatestCandle(ctx context.Context, symbol string, tf int) (model.Candle, bool, error) {
	data, err := r.client.Get(ctx, latestKey(symbol, tf)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return model.Candle{}, false, nil
		}
		return model.Candle{}, false, fmt.Errorf("redis get latest candle: %w", err)
	}

	var c model.Candle
	if err := json.Unmarshal(data, &c); err != nil {
		return model.Candle{}, false, fmt.Errorf("unmarshal latest candle: %w", err)
	}
	return c, true, nil
}

// RecentCandles reads up to count most recent closed candles from the
// (symbol, tf) stream, oldest first.
func (r *Reader) RecentCandles(ctx context.Context, symbol string, tf int, count int64) ([]model.Candle, error) {
	msgs, err := r.client.XRevRangeN(ctx, streamKey(symbol, tf), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange: %w", err)
	}

	candles := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var c model.Candle
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			log.Printf("[redis-reader] unmarshal candle error: %v", err)
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// SubscribeCandles subscribes to the pub:candle:* pattern and feeds candles
// into out. Forming and closed candles both flow; the consumer filters.
// Blocks until ctx is cancelled.
func (r *Reader) SubscribeCandles(ctx context.Context, out chan<- model.Candle) error {
	pubsub := r.client.PSubscribe(ctx, "pub:candle:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c model.Candle
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				continue
			}
			select {
			case out <- c:
			default:
			}
		}
	}
}

// ReadLatestSnapshotJSON loads the engine status snapshot the Writer stores.
func (r *Reader) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return data, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
