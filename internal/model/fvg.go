package model

import "time"

// FVGDirection is the direction of a fair value gap imbalance.
type FVGDirection string

const (
	FVGBullish FVGDirection = "BULLISH"
	FVGBearish FVGDirection = "BEARISH"
)

// FVG is a three-candle imbalance: a zone candle-1's extreme and candle-3's
// extreme never overlapped, which the market is expected to revisit.
type FVG struct {
	Direction FVGDirection `json:"direction"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Midpoint  float64      `json:"midpoint"`
	GapPips   float64      `json:"gap_pips"`
	TS        time.Time    `json:"ts"` // candle-3 timestamp

	Candle1High float64 `json:"candle1_high"`
	Candle1Low  float64 `json:"candle1_low"`
	Candle3High float64 `json:"candle3_high"`
	Candle3Low  float64 `json:"candle3_low"`

	Valid          bool      `json:"valid"`
	Mitigated      bool      `json:"mitigated"`
	MitigatedAt    time.Time `json:"mitigated_at,omitempty"`
	MitigatedPrice float64   `json:"mitigated_price,omitempty"`
}

// Touches reports whether the candle's range overlaps the gap zone.
func (f *FVG) Touches(c Candle) bool {
	return c.Low <= f.High && c.High >= f.Low
}

// FVGState tracks the single active gap per symbol plus detection history.
type FVGState struct {
	Active        *FVG      `json:"active,omitempty"`
	History       []FVG     `json:"history,omitempty"`
	LastDetection time.Time `json:"last_detection,omitempty"`
	Count         int       `json:"count"`
}
