// Package marketcontext classifies where price sits inside the previous
// session's range and derives the directional bias for the institutional
// setup. Pure and stateless: no I/O, no stored state.
package marketcontext

import (
	"smc-enginev1/internal/model"
)

// Thresholds for range-position classification.
const (
	topThreshold    = 0.7
	bottomThreshold = 0.3
)

// Evaluate derives the context for the current price against the previous
// session. A nil or incomplete previous session and a flat (zero-range)
// session both degrade to MIDDLE/NONE/NO_TRADE — never an error, never a
// division by zero.
func Evaluate(price float64, prev *model.SessionWindow) model.ContextResult {
	if prev == nil || !prev.Complete || prev.Range() <= 0 {
		return model.ContextResult{
			Classification: model.PositionMiddle,
			Bias:           model.BiasNone,
			Grade:          model.GradeNoTrade,
		}
	}

	pos := (price - prev.Low) / prev.Range()
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}

	switch {
	case pos >= topThreshold:
		return model.ContextResult{
			Classification: model.PositionTop,
			Bias:           model.BiasShortOnly,
			Grade:          model.GradeA,
			Position:       pos,
		}
	case pos <= bottomThreshold:
		return model.ContextResult{
			Classification: model.PositionBottom,
			Bias:           model.BiasLongOnly,
			Grade:          model.GradeA,
			Position:       pos,
		}
	default:
		// Mid-range: no directional edge, reduced grade.
		return model.ContextResult{
			Classification: model.PositionMiddle,
			Bias:           model.BiasNone,
			Grade:          model.GradeB,
			Position:       pos,
		}
	}
}
