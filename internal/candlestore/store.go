// Package candlestore keeps per-symbol, per-timeframe rolling buffers of
// closed OHLC candles. It is the single owner of candle history; engines read
// windows out of it and never mutate candles. Designed for single-goroutine
// usage from the evaluation loop — no locks needed.
package candlestore

import (
	"smc-enginev1/internal/model"
)

// Store holds bounded candle series keyed by "symbol:tf".
type Store struct {
	capacity int
	series   map[string][]model.Candle

	// OnDroppedOutOfOrder is called when an append is rejected because its
	// timestamp is not strictly newer than the series tail (optional).
	OnDroppedOutOfOrder func(symbol string, tf int)
}

// New creates a store keeping at most capacity candles per series.
func New(capacity int) *Store {
	if capacity < 8 {
		capacity = 8
	}
	return &Store{
		capacity: capacity,
		series:   make(map[string][]model.Candle, 16),
	}
}

// Append adds a closed candle to its series. Appends must be monotonically
// increasing in timestamp per series; a candle with the same timestamp as the
// tail replaces it (late correction of the just-closed bucket), an older one
// is dropped. Forming candles are never stored.
func (s *Store) Append(c model.Candle) bool {
	if c.Forming {
		return false
	}
	key := c.Key()
	buf := s.series[key]

	if n := len(buf); n > 0 {
		last := buf[n-1].TS
		if c.TS.Before(last) {
			if s.OnDroppedOutOfOrder != nil {
				s.OnDroppedOutOfOrder(c.Symbol, c.TF)
			}
			return false
		}
		if c.TS.Equal(last) {
			buf[n-1] = c
			return true
		}
	}

	buf = append(buf, c)
	if len(buf) > s.capacity {
		// Shift instead of reslice so the backing array doesn't grow forever.
		copy(buf, buf[len(buf)-s.capacity:])
		buf = buf[:s.capacity]
	}
	s.series[key] = buf
	return true
}

// Latest returns the most recent closed candle for (symbol, tf).
func (s *Store) Latest(symbol string, tf int) (model.Candle, bool) {
	buf := s.series[symbol+":"+model.Itoa(tf)]
	if len(buf) == 0 {
		return model.Candle{}, false
	}
	return buf[len(buf)-1], true
}

// Last returns up to n most recent candles, oldest first. The returned slice
// is a copy; callers may hold onto it across appends.
func (s *Store) Last(symbol string, tf int, n int) []model.Candle {
	buf := s.series[symbol+":"+model.Itoa(tf)]
	if n <= 0 || len(buf) == 0 {
		return nil
	}
	if n > len(buf) {
		n = len(buf)
	}
	out := make([]model.Candle, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// Window3 returns the last three closed candles, oldest first, for FVG
// detection. ok is false until three candles exist.
func (s *Store) Window3(symbol string, tf int) ([3]model.Candle, bool) {
	last := s.Last(symbol, tf, 3)
	if len(last) < 3 {
		return [3]model.Candle{}, false
	}
	return [3]model.Candle{last[0], last[1], last[2]}, true
}

// Len returns the number of stored candles for (symbol, tf).
func (s *Store) Len(symbol string, tf int) int {
	return len(s.series[symbol+":"+model.Itoa(tf)])
}
