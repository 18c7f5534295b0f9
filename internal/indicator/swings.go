// Package indicator computes technical structure from candle windows. The SMC
// engine only needs fractal swing points: confirmed local extremes that feed
// the optional swing liquidity pools.
package indicator

import (
	"smc-enginev1/internal/model"
)

// Swings extracts confirmed fractal highs and lows from a candle window
// (oldest first). A swing high at index i requires wing candles on each side
// with strictly lower highs; a swing low is the mirror. The trailing wing
// candles can never confirm, so the most recent `wing` candles produce no
// points — a swing is structure, not a live signal.
func Swings(candles []model.Candle, wing int) (highs, lows []model.SwingPoint) {
	if wing < 1 || len(candles) < 2*wing+1 {
		return nil, nil
	}

	for i := wing; i < len(candles)-wing; i++ {
		c := candles[i]

		isHigh, isLow := true, true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= c.High {
				isHigh = false
			}
			if candles[j].Low <= c.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			highs = append(highs, model.SwingPoint{Price: c.High, TS: c.TS})
		}
		if isLow {
			lows = append(lows, model.SwingPoint{Price: c.Low, TS: c.TS})
		}
	}
	return highs, lows
}
