// Package liquidity builds the per-symbol set of liquidity pools (session,
// daily and optional swing levels) and detects institutional sweeps of those
// pools: a wick through the level that closes back on the origin side.
package liquidity

import (
	"sort"

	"smc-enginev1/internal/model"
)

// Config holds the liquidity engine tunables.
type Config struct {
	SweepBufferPips   float64 // wick must exceed the level by this many pips
	IncludeSwingPoints bool
	MaxSwingPools     int // cap per side when swing pools are enabled
	PipSize           float64
}

// Pool priorities: lower is checked first. Session levels are the primary
// sweep targets, then daily, then swing structure.
const (
	prioritySession = 1
	priorityDaily   = 2
	prioritySwing   = 3
)

// BuildPools rebuilds the pool set from current session state. When existing
// pools are supplied, sweep status is inherited by pool key — a rebuild must
// never forget that a level was already swept.
func BuildPools(sess *model.SessionState, swingHighs, swingLows []model.SwingPoint, existing []model.LiquidityPool, cfg Config) []model.LiquidityPool {
	if sess == nil {
		return nil
	}

	pools := make([]model.LiquidityPool, 0, 4+2*cfg.MaxSwingPools)

	if prev := sess.Previous; prev != nil && prev.Complete {
		pools = append(pools,
			model.LiquidityPool{
				Key:      model.PoolKey(model.PoolSessionHigh, prev.High, prev.StartTime),
				Type:     model.PoolSessionHigh,
				Price:    prev.High,
				TS:       prev.StartTime,
				Source:   string(prev.Type),
				Priority: prioritySession,
			},
			model.LiquidityPool{
				Key:      model.PoolKey(model.PoolSessionLow, prev.Low, prev.StartTime),
				Type:     model.PoolSessionLow,
				Price:    prev.Low,
				TS:       prev.StartTime,
				Source:   string(prev.Type),
				Priority: prioritySession,
			},
		)
	}

	if sess.HasPreviousDay() {
		pools = append(pools,
			model.LiquidityPool{
				Key:      model.PoolKey(model.PoolDailyHigh, sess.PrevDayHigh, sess.PrevDayTime),
				Type:     model.PoolDailyHigh,
				Price:    sess.PrevDayHigh,
				TS:       sess.PrevDayTime,
				Source:   "prev_day",
				Priority: priorityDaily,
			},
			model.LiquidityPool{
				Key:      model.PoolKey(model.PoolDailyLow, sess.PrevDayLow, sess.PrevDayTime),
				Type:     model.PoolDailyLow,
				Price:    sess.PrevDayLow,
				TS:       sess.PrevDayTime,
				Source:   "prev_day",
				Priority: priorityDaily,
			},
		)
	}

	if cfg.IncludeSwingPoints {
		pools = appendSwingPools(pools, swingHighs, model.PoolSwingHigh, cfg.MaxSwingPools)
		pools = appendSwingPools(pools, swingLows, model.PoolSwingLow, cfg.MaxSwingPools)
	}

	mergeSweepStatus(pools, existing)

	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].Priority < pools[j].Priority
	})
	return pools
}

func appendSwingPools(pools []model.LiquidityPool, points []model.SwingPoint, t model.PoolType, max int) []model.LiquidityPool {
	if max > 0 && len(points) > max {
		// Keep the most recent swings.
		points = points[len(points)-max:]
	}
	for _, sp := range points {
		pools = append(pools, model.LiquidityPool{
			Key:      model.PoolKey(t, sp.Price, sp.TS),
			Type:     t,
			Price:    sp.Price,
			TS:       sp.TS,
			Source:   "fractal",
			Priority: prioritySwing,
		})
	}
	return pools
}

// mergeSweepStatus carries swept/sweptAt/sweepDirection forward from any
// existing pool sharing the same key. Merge-by-key, not replace.
func mergeSweepStatus(pools []model.LiquidityPool, existing []model.LiquidityPool) {
	if len(existing) == 0 {
		return
	}
	byKey := make(map[string]*model.LiquidityPool, len(existing))
	for i := range existing {
		byKey[existing[i].Key] = &existing[i]
	}
	for i := range pools {
		old, ok := byKey[pools[i].Key]
		if !ok || !old.Swept {
			continue
		}
		pools[i].Swept = true
		pools[i].SweptAt = old.SweptAt
		pools[i].SweptCandle = old.SweptCandle
		pools[i].SweepDirection = old.SweepDirection
	}
}
