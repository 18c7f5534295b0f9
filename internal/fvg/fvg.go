// Package fvg detects three-candle fair value gap imbalances and tracks their
// mitigation (price returning into the gap zone). One active gap is tracked
// per symbol; a newly detected valid gap replaces it and the old gap moves to
// history.
package fvg

import (
	"time"

	"smc-enginev1/internal/model"
)

// Config holds the FVG engine tunables.
type Config struct {
	MinGapPips float64 // gaps at or below this size are discarded
	PipSize    float64
	MaxHistory int // bound on retained replaced gaps
}

// Detect examines a 3-candle window (oldest first) for a gap in the given
// direction. The direction is caller-supplied — the manager maps a HIGH sweep
// to BEARISH and a LOW sweep to BULLISH; this engine never infers it.
//
// A bullish gap requires candle-3's low above candle-1's high (bearish is the
// mirror) and a gap size strictly greater than MinGapPips. Returns true when
// a new valid gap became active.
func Detect(window [3]model.Candle, dir model.FVGDirection, st *model.FVGState, now time.Time, cfg Config) bool {
	if st == nil || cfg.PipSize <= 0 {
		return false
	}
	c1, c3 := window[0], window[2]

	var high, low float64
	switch dir {
	case model.FVGBullish:
		if c3.Low <= c1.High {
			return false
		}
		high, low = c3.Low, c1.High
	case model.FVGBearish:
		if c3.High >= c1.Low {
			return false
		}
		high, low = c1.Low, c3.High
	default:
		return false
	}

	gapPips := (high - low) / cfg.PipSize
	if gapPips <= cfg.MinGapPips {
		// Too small to be a meaningful imbalance — discard, don't track.
		return false
	}

	gap := model.FVG{
		Direction:   dir,
		High:        high,
		Low:         low,
		Midpoint:    (high + low) / 2,
		GapPips:     gapPips,
		TS:          c3.TS,
		Candle1High: c1.High,
		Candle1Low:  c1.Low,
		Candle3High: c3.High,
		Candle3Low:  c3.Low,
		Valid:       true,
	}

	if st.Active != nil {
		st.History = append(st.History, *st.Active)
		if cfg.MaxHistory > 0 && len(st.History) > cfg.MaxHistory {
			st.History = st.History[len(st.History)-cfg.MaxHistory:]
		}
	}
	st.Active = &gap
	st.LastDetection = now
	st.Count++
	return true
}

// CheckMitigation marks the active gap mitigated the first time a candle's
// range touches [low, high]. Exactly-once: repeated qualifying candles leave
// MitigatedAt and MitigatedPrice unchanged. Returns true only on the
// transition.
func CheckMitigation(st *model.FVGState, c model.Candle) bool {
	if st == nil || st.Active == nil || st.Active.Mitigated {
		return false
	}
	if !st.Active.Touches(c) {
		return false
	}
	st.Active.Mitigated = true
	st.Active.MitigatedAt = c.TS
	st.Active.MitigatedPrice = c.Close
	return true
}

// Reset drops the active gap (setup abandoned or consumed by an entry).
func Reset(st *model.FVGState) {
	if st == nil || st.Active == nil {
		return
	}
	st.History = append(st.History, *st.Active)
	st.Active = nil
}
