package model

import (
	"strconv"
	"time"
)

// PoolType identifies the origin of a liquidity pool level.
type PoolType string

const (
	PoolSessionHigh PoolType = "SESSION_HIGH"
	PoolSessionLow  PoolType = "SESSION_LOW"
	PoolDailyHigh   PoolType = "DAILY_HIGH"
	PoolDailyLow    PoolType = "DAILY_LOW"
	PoolSwingHigh   PoolType = "SWING_HIGH"
	PoolSwingLow    PoolType = "SWING_LOW"
)

// SweepDirection marks which side of a pool was swept.
type SweepDirection string

const (
	SweepHigh SweepDirection = "HIGH"
	SweepLow  SweepDirection = "LOW"
)

// LiquidityPool is a price level presumed to attract resting stops.
// Pools are rebuilt every evaluation cycle; sweep status survives rebuilds by
// matching Key against the previous pool set. Sweeping is monotonic for the
// lifetime of a pool key.
type LiquidityPool struct {
	Key            string         `json:"key"` // "type:price:unixts", unique
	Type           PoolType       `json:"type"`
	Price          float64        `json:"price"`
	TS             time.Time      `json:"ts"`
	Source         string         `json:"source"`   // e.g. "LONDON", "prev_day", "fractal"
	Priority       int            `json:"priority"` // lower = checked first
	Swept          bool           `json:"swept"`
	SweptAt        time.Time      `json:"swept_at,omitempty"`
	SweptCandle    *Candle        `json:"swept_candle,omitempty"`
	SweepDirection SweepDirection `json:"sweep_direction,omitempty"`
}

// IsHighSide reports whether a sweep of this pool takes out buy-side stops
// above price (session/daily/swing highs).
func (p *LiquidityPool) IsHighSide() bool {
	switch p.Type {
	case PoolSessionHigh, PoolDailyHigh, PoolSwingHigh:
		return true
	}
	return false
}

// PoolKey builds the composite identity for a pool. Price is fixed to 5
// decimals so a level rebuilt from the same session data maps to the same key.
func PoolKey(t PoolType, price float64, ts time.Time) string {
	return string(t) + ":" + strconv.FormatFloat(price, 'f', 5, 64) + ":" + strconv.FormatInt(ts.Unix(), 10)
}

// SweepResult is the outcome of one sweep-detection pass over a candle.
type SweepResult struct {
	Detected  bool           `json:"detected"`
	Confirmed bool           `json:"confirmed"`
	Type      SweepDirection `json:"type,omitempty"`
	PoolKey   string         `json:"pool_key,omitempty"`
}

// SwingPoint is a confirmed fractal high or low used as an optional pool.
type SwingPoint struct {
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}
