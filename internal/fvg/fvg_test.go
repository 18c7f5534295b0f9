package fvg

import (
	"testing"
	"time"

	"smc-enginev1/internal/model"
)

var fvgCfg = Config{
	MinGapPips: 1.0,
	PipSize:    0.0001,
	MaxHistory: 10,
}

func fvgCandle(ts time.Time, o, h, l, c float64) model.Candle {
	return model.Candle{Symbol: "EURUSD", TF: model.TFM5, TS: ts, Open: o, High: h, Low: l, Close: c}
}

// bullishWindow has candle-3's low 2 pips above candle-1's high.
func bullishWindow() [3]model.Candle {
	base := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	return [3]model.Candle{
		fvgCandle(base, 1.1000, 1.10100, 1.0995, 1.1008),
		fvgCandle(base.Add(5*time.Minute), 1.1008, 1.1030, 1.1006, 1.1028),
		fvgCandle(base.Add(10*time.Minute), 1.1028, 1.1040, 1.10120, 1.1035),
	}
}

func TestDetect_Bullish(t *testing.T) {
	var st model.FVGState
	now := time.Date(2024, 3, 5, 12, 45, 0, 0, time.UTC)

	if !Detect(bullishWindow(), model.FVGBullish, &st, now, fvgCfg) {
		t.Fatal("expected bullish gap detection")
	}

	gap := st.Active
	if gap == nil {
		t.Fatal("expected active gap")
	}
	if gap.Direction != model.FVGBullish {
		t.Errorf("expected BULLISH, got %s", gap.Direction)
	}
	if gap.High != 1.10120 || gap.Low != 1.10100 {
		t.Errorf("expected zone 1.10100–1.10120, got %v–%v", gap.Low, gap.High)
	}
	if gap.GapPips < 1.99 || gap.GapPips > 2.01 {
		t.Errorf("expected ≈2 pip gap, got %v", gap.GapPips)
	}
	if !gap.Valid || gap.Mitigated {
		t.Errorf("fresh gap must be valid and unmitigated: %+v", gap)
	}
	if st.Count != 1 || !st.LastDetection.Equal(now) {
		t.Errorf("state bookkeeping wrong: count=%d last=%s", st.Count, st.LastDetection)
	}
}

func TestDetect_Bearish(t *testing.T) {
	base := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	window := [3]model.Candle{
		fvgCandle(base, 1.1040, 1.1045, 1.10300, 1.1032),
		fvgCandle(base.Add(5*time.Minute), 1.1032, 1.1034, 1.1010, 1.1012),
		fvgCandle(base.Add(10*time.Minute), 1.1012, 1.10280, 1.1005, 1.1008),
	}

	var st model.FVGState
	if !Detect(window, model.FVGBearish, &st, base.Add(15*time.Minute), fvgCfg) {
		t.Fatal("expected bearish gap detection")
	}
	if st.Active.High != 1.10300 || st.Active.Low != 1.10280 {
		t.Errorf("expected zone 1.10280–1.10300, got %v–%v", st.Active.Low, st.Active.High)
	}
}

func TestDetect_NoOverlapNoGap(t *testing.T) {
	base := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	// Candle-3's low sits below candle-1's high: ranges overlap.
	window := [3]model.Candle{
		fvgCandle(base, 1.1000, 1.1010, 1.0995, 1.1008),
		fvgCandle(base.Add(5*time.Minute), 1.1008, 1.1030, 1.1006, 1.1028),
		fvgCandle(base.Add(10*time.Minute), 1.1028, 1.1040, 1.1005, 1.1035),
	}

	var st model.FVGState
	if Detect(window, model.FVGBullish, &st, base, fvgCfg) {
		t.Error("overlapping candles must not produce a gap")
	}
	if st.Active != nil {
		t.Error("state must remain empty")
	}
}

func TestDetect_GapAtMinSizeDiscarded(t *testing.T) {
	base := time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC)
	// Exactly 1.0 pip: the rule is strictly-greater-than.
	window := [3]model.Candle{
		fvgCandle(base, 1.1000, 1.10100, 1.0995, 1.1008),
		fvgCandle(base.Add(5*time.Minute), 1.1008, 1.1030, 1.1006, 1.1028),
		fvgCandle(base.Add(10*time.Minute), 1.1028, 1.1040, 1.10110, 1.1035),
	}

	var st model.FVGState
	if Detect(window, model.FVGBullish, &st, base, fvgCfg) {
		t.Error("gap equal to the minimum must be discarded")
	}
}

func TestDetect_WrongDirection(t *testing.T) {
	var st model.FVGState
	if Detect(bullishWindow(), model.FVGBearish, &st, time.Now(), fvgCfg) {
		t.Error("bullish geometry must not match a bearish scan")
	}
}

func TestDetect_ReplacementMovesToHistory(t *testing.T) {
	var st model.FVGState
	now := time.Date(2024, 3, 5, 12, 45, 0, 0, time.UTC)
	Detect(bullishWindow(), model.FVGBullish, &st, now, fvgCfg)
	firstTS := st.Active.TS

	// A later, larger gap replaces the active one.
	base := now.Add(time.Hour)
	window := [3]model.Candle{
		fvgCandle(base, 1.1100, 1.11100, 1.1095, 1.1108),
		fvgCandle(base.Add(5*time.Minute), 1.1108, 1.1140, 1.1106, 1.1138),
		fvgCandle(base.Add(10*time.Minute), 1.1138, 1.1150, 1.11150, 1.1145),
	}
	if !Detect(window, model.FVGBullish, &st, base.Add(15*time.Minute), fvgCfg) {
		t.Fatal("expected second detection")
	}

	if len(st.History) != 1 || !st.History[0].TS.Equal(firstTS) {
		t.Errorf("replaced gap must move to history, got %d entries", len(st.History))
	}
	if st.Count != 2 {
		t.Errorf("expected count=2, got %d", st.Count)
	}
}

func TestCheckMitigation_ExactlyOnce(t *testing.T) {
	var st model.FVGState
	Detect(bullishWindow(), model.FVGBullish, &st, time.Now(), fvgCfg)

	miss := fvgCandle(time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC), 1.1030, 1.1040, 1.10125, 1.1035)
	if CheckMitigation(&st, miss) {
		t.Fatal("candle above the zone must not mitigate")
	}

	hit := fvgCandle(time.Date(2024, 3, 5, 13, 5, 0, 0, time.UTC), 1.1030, 1.1035, 1.10110, 1.1032)
	if !CheckMitigation(&st, hit) {
		t.Fatal("candle entering the zone must mitigate")
	}
	if !st.Active.Mitigated || !st.Active.MitigatedAt.Equal(hit.TS) || st.Active.MitigatedPrice != hit.Close {
		t.Errorf("mitigation fields wrong: %+v", st.Active)
	}

	// A second qualifying candle leaves the record untouched.
	again := fvgCandle(time.Date(2024, 3, 5, 13, 10, 0, 0, time.UTC), 1.1032, 1.1033, 1.10105, 1.1031)
	if CheckMitigation(&st, again) {
		t.Error("mitigation must fire exactly once")
	}
	if !st.Active.MitigatedAt.Equal(hit.TS) {
		t.Errorf("MitigatedAt changed: %s", st.Active.MitigatedAt)
	}
}

func TestCheckMitigation_NoActiveGap(t *testing.T) {
	var st model.FVGState
	if CheckMitigation(&st, fvgCandle(time.Now(), 1.1, 1.2, 1.0, 1.1)) {
		t.Error("no active gap, nothing to mitigate")
	}
	if CheckMitigation(nil, model.Candle{}) {
		t.Error("nil state must be a no-op")
	}
}

func TestReset(t *testing.T) {
	var st model.FVGState
	Detect(bullishWindow(), model.FVGBullish, &st, time.Now(), fvgCfg)

	Reset(&st)
	if st.Active != nil {
		t.Error("expected no active gap after reset")
	}
	if len(st.History) != 1 {
		t.Errorf("reset gap must be archived, got %d", len(st.History))
	}

	// Reset with nothing active is a no-op.
	Reset(&st)
	if len(st.History) != 1 {
		t.Error("second reset must not duplicate history")
	}
}

func TestDetect_HistoryBounded(t *testing.T) {
	cfg := fvgCfg
	cfg.MaxHistory = 3

	var st model.FVGState
	base := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		off := time.Duration(i) * time.Hour
		window := [3]model.Candle{
			fvgCandle(base.Add(off), 1.1000, 1.10100, 1.0995, 1.1008),
			fvgCandle(base.Add(off+5*time.Minute), 1.1008, 1.1030, 1.1006, 1.1028),
			fvgCandle(base.Add(off+10*time.Minute), 1.1028, 1.1040, 1.10130, 1.1035),
		}
		if !Detect(window, model.FVGBullish, &st, base.Add(off), cfg) {
			t.Fatalf("detection %d failed", i)
		}
	}

	if len(st.History) > 3 {
		t.Errorf("history must be capped at 3, got %d", len(st.History))
	}
	if st.Count != 6 {
		t.Errorf("expected count=6, got %d", st.Count)
	}
}
