package model

// RangePosition classifies where price sits inside the previous session range.
type RangePosition string

const (
	PositionTop    RangePosition = "TOP"
	PositionMiddle RangePosition = "MIDDLE"
	PositionBottom RangePosition = "BOTTOM"
)

// Bias is the directional filter derived from range position.
type Bias string

const (
	BiasLongOnly  Bias = "LONG_ONLY"
	BiasShortOnly Bias = "SHORT_ONLY"
	BiasNone      Bias = "NONE"
)

// Grade ranks how tradeable the current context is.
type Grade string

const (
	GradeA       Grade = "A"
	GradeB       Grade = "B"
	GradeNoTrade Grade = "NO_TRADE"
)

// Tradeable reports whether this grade permits a setup to progress.
func (g Grade) Tradeable() bool {
	return g == GradeA || g == GradeB
}

// ContextResult is the output of the context engine for one evaluation.
// Position is (price − prevLow) / prevRange, clamped to [0, 1]; it is only
// meaningful when Grade != NO_TRADE.
type ContextResult struct {
	Classification RangePosition `json:"classification"`
	Bias           Bias          `json:"bias"`
	Grade          Grade         `json:"grade"`
	Position       float64       `json:"position"`
}
