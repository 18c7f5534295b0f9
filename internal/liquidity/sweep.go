package liquidity

import (
	"smc-enginev1/internal/model"
)

// DetectSweep scans un-swept pools in priority order against one closed
// candle. A HIGH-side pool is swept when the wick crosses price+buffer but the
// candle closes back below the level; LOW-side is the mirror. The first
// qualifying pool wins; already-swept pools are skipped entirely and a sweep
// is never re-detected on them.
//
// The winning pool index is returned so the caller can apply the mutation to
// its own pool slice; -1 when nothing qualified.
func DetectSweep(pools []model.LiquidityPool, c model.Candle, cfg Config) (model.SweepResult, int) {
	buffer := cfg.SweepBufferPips * cfg.PipSize

	for i := range pools {
		p := &pools[i]
		if p.Swept {
			continue
		}

		if p.IsHighSide() {
			if c.High > p.Price+buffer && c.Close < p.Price {
				return model.SweepResult{
					Detected:  true,
					Confirmed: true,
					Type:      model.SweepHigh,
					PoolKey:   p.Key,
				}, i
			}
		} else {
			if c.Low < p.Price-buffer && c.Close > p.Price {
				return model.SweepResult{
					Detected:  true,
					Confirmed: true,
					Type:      model.SweepLow,
					PoolKey:   p.Key,
				}, i
			}
		}
	}

	return model.SweepResult{}, -1
}

// MarkSwept applies the sweep mutation to the pool at index idx. Marking is
// monotonic: a pool already swept is left untouched.
func MarkSwept(pools []model.LiquidityPool, idx int, res model.SweepResult, c model.Candle) {
	if idx < 0 || idx >= len(pools) || pools[idx].Swept {
		return
	}
	cc := c
	pools[idx].Swept = true
	pools[idx].SweptAt = c.TS
	pools[idx].SweptCandle = &cc
	pools[idx].SweepDirection = res.Type
}
