// Package session classifies wall-clock time into trading sessions and tracks
// per-symbol session windows: the in-progress window is widened as candles
// close inside it and sealed when the clock crosses the next boundary. The
// most recently sealed window feeds the context and liquidity engines.
package session

import (
	"time"

	"smc-enginev1/internal/model"
)

// Engine tracks session windows for one symbol. Owned by that symbol's
// manager and driven from a single goroutine — no locks needed.
type Engine struct {
	symbol string
	bounds Boundaries

	state model.SessionState

	// Previous-day tracking for daily liquidity pools.
	dayDate time.Time // UTC midnight of the day being tracked
	dayHigh float64
	dayLow  float64
}

// New creates a session engine for one symbol. Boundaries must already be
// validated by the config layer.
func New(symbol string, bounds Boundaries) *Engine {
	return &Engine{
		symbol: symbol,
		bounds: bounds,
		state:  model.SessionState{Symbol: symbol},
	}
}

// SetBounds swaps the boundary map on hot config reload. Window state is
// untouched; the new map applies from the next classification on.
func (e *Engine) SetBounds(b Boundaries) {
	e.bounds = b
}

// Current returns the session type at the given instant.
func (e *Engine) Current(t time.Time) model.SessionType {
	return e.bounds.Classify(t)
}

// State returns the live session state. The engine retains ownership; callers
// must not mutate it.
func (e *Engine) State() *model.SessionState {
	return &e.state
}

// Update feeds one closed candle into the tracker. Returns true when the
// candle crossed a session boundary (the in-progress window was sealed and a
// new one opened) — the manager resets its per-session trade budget on that
// signal.
func (e *Engine) Update(c model.Candle) bool {
	crossed := e.roll(c.TS, c.Open)

	w := e.state.Current
	if c.High > w.High {
		w.High = c.High
	}
	if c.Low < w.Low {
		w.Low = c.Low
	}
	w.ClosePrice = c.Close
	w.CandleCount++

	e.trackDay(c)
	return crossed
}

// Roll seals the in-progress window if the clock has crossed a session
// boundary since the last candle. Needed when no candles arrive across the
// boundary (weekend gaps, quiet symbols). Returns true on a crossing.
func (e *Engine) Roll(now time.Time) bool {
	if e.state.Current == nil {
		return false
	}
	if e.bounds.Classify(now) == e.state.Current.Type {
		return false
	}
	return e.roll(now, e.state.Current.ClosePrice)
}

// roll opens a new window at t if none exists or the session type changed,
// sealing the old one into Previous. openPrice seeds the new window's range.
func (e *Engine) roll(t time.Time, openPrice float64) bool {
	st := e.bounds.Classify(t)
	cur := e.state.Current

	if cur != nil && cur.Type == st {
		return false
	}

	if cur != nil {
		cur.Complete = true
		cur.EndTime = t
		e.state.Previous = cur
	}

	e.state.Current = &model.SessionWindow{
		Type:      st,
		High:      openPrice,
		Low:       openPrice,
		OpenPrice: openPrice,
		StartTime: t,
	}
	return cur != nil
}

// trackDay maintains previous-day high/low across UTC day rollovers.
func (e *Engine) trackDay(c model.Candle) {
	day := c.TS.UTC().Truncate(24 * time.Hour)
	if !day.Equal(e.dayDate) {
		if !e.dayDate.IsZero() {
			e.state.PrevDayHigh = e.dayHigh
			e.state.PrevDayLow = e.dayLow
			e.state.PrevDayTime = e.dayDate
		}
		e.dayDate = day
		e.dayHigh = c.High
		e.dayLow = c.Low
		return
	}
	if c.High > e.dayHigh {
		e.dayHigh = c.High
	}
	if c.Low < e.dayLow {
		e.dayLow = c.Low
	}
}

// Bootstrap reconstructs session state from historical candles so the engine
// can start mid-session with a populated previous window. History may span
// fewer candles than a full session; whatever high/low is available still
// populates the windows. Never errors.
func (e *Engine) Bootstrap(candles []model.Candle, now time.Time) {
	for _, c := range candles {
		if c.Forming || !c.TS.Before(now) {
			continue
		}
		e.Update(c)
	}
	// If the clock has already left the last bootstrapped window, seal it so
	// Previous reflects the most recently completed session.
	e.Roll(now)
}
