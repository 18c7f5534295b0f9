package model

import "time"

// SessionType identifies a trading session window.
type SessionType string

const (
	SessionAsia   SessionType = "ASIA"
	SessionLondon SessionType = "LONDON"
	SessionNY     SessionType = "NY"
	SessionOff    SessionType = "OFF_SESSION"
)

// SessionWindow tracks the price range of one session occurrence.
// A window is created when the clock enters a session boundary, widened as
// candles close inside it, and sealed when the clock crosses the next boundary.
type SessionWindow struct {
	Type        SessionType `json:"type"`
	High        float64     `json:"high"`
	Low         float64     `json:"low"`
	OpenPrice   float64     `json:"open_price"`
	ClosePrice  float64     `json:"close_price"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	Complete    bool        `json:"complete"`
	CandleCount int         `json:"candle_count"`
}

// Range returns the session high-low spread.
func (w *SessionWindow) Range() float64 {
	return w.High - w.Low
}

// SessionState is the per-symbol view the liquidity and context engines
// consume: the sealed previous session, the in-progress one, and the previous
// day's extremes for daily liquidity pools.
type SessionState struct {
	Symbol      string         `json:"symbol"`
	Current     *SessionWindow `json:"current,omitempty"`
	Previous    *SessionWindow `json:"previous,omitempty"`
	PrevDayHigh float64        `json:"prev_day_high"`
	PrevDayLow  float64        `json:"prev_day_low"`
	PrevDayTime time.Time      `json:"prev_day_time"`
}

// HasPreviousSession reports whether a sealed previous window exists.
func (s *SessionState) HasPreviousSession() bool {
	return s != nil && s.Previous != nil && s.Previous.Complete
}

// HasPreviousDay reports whether previous-day extremes are known.
func (s *SessionState) HasPreviousDay() bool {
	return s != nil && s.PrevDayHigh > 0 && s.PrevDayLow > 0
}
