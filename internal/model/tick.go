package model

import "time"

// Tick represents a single market data tick from the broker WebSocket feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	TS     time.Time `json:"ts"` // UTC timestamp
}

// Mid returns the bid/ask midpoint, the price the engines evaluate against.
func (t *Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}
