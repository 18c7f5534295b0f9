package model

import (
	"encoding/json"
	"time"
)

// Timeframe durations in seconds.
const (
	TFM1  = 60
	TFM5  = 300
	TFM15 = 900
	TFH1  = 3600
)

// Candle represents an OHLC candle for a single symbol and timeframe.
// TF is the timeframe duration in seconds (300 = M5, 900 = M15, 3600 = H1).
// Prices are float64 quotes; forex fractional pips don't fit an integer
// minor-unit representation.
type Candle struct {
	Symbol  string    `json:"symbol"`
	TF      int       `json:"tf"` // timeframe in seconds
	TS      time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  int64     `json:"volume"`
	Count   int       `json:"count"`   // number of source candles merged
	Forming bool      `json:"forming"` // true while the bucket is still open
}

// Key returns a unique key for this candle's series: "symbol:tf".
func (c *Candle) Key() string {
	return c.Symbol + ":" + Itoa(c.TF)
}

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool {
	return c.Close > c.Open
}

// Range returns high minus low.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
