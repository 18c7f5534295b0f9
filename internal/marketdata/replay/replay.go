// Package replay reads historical candles from SQLite and emits them at a
// configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"smc-enginev1/internal/model"
	sqlitestore "smc-enginev1/internal/store/sqlite"
)

// Replayer reads historical candles from SQLite and replays them at a
// configurable speed multiplier.
type Replayer struct {
	reader *sqlitestore.Reader
}

// New creates a Replayer backed by a SQLite reader.
func New(reader *sqlitestore.Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays all candles for the given TFs into outCh, interleaved in
// timestamp order. speed controls the playback rate: 1.0 = real-time,
// 10.0 = 10x, 0 = as fast as possible. fromTS filters candles to those after
// this Unix timestamp (0 = all).
func (r *Replayer) Run(ctx context.Context, tfs []int, fromTS int64, speed float64, outCh chan<- model.Candle) error {
	var all []model.Candle
	for _, tf := range tfs {
		candles, err := r.reader.ReadAllCandles(tf, fromTS)
		if err != nil {
			return err
		}
		all = append(all, candles...)
	}

	if len(all) == 0 {
		log.Println("[replay] no candles found in SQLite")
		return nil
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].TS.Before(all[j].TS) })

	log.Printf("[replay] loaded %d candles across %d TFs, speed=%.1fx", len(all), len(tfs), speed)

	var prevTS time.Time
	emitted := 0

	for _, c := range all {
		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		default:
		}

		// Simulate time gaps between candles
		if speed > 0 && !prevTS.IsZero() {
			gap := c.TS.Sub(prevTS)
			if gap > 0 {
				scaledGap := time.Duration(float64(gap) / speed)
				// Cap max sleep to avoid multi-hour weekend waits
				if scaledGap > 5*time.Second {
					scaledGap = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaledGap):
				}
			}
		}
		prevTS = c.TS

		c.Forming = false
		outCh <- c
		emitted++
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
