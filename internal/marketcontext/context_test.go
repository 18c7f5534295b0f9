package marketcontext

import (
	"testing"
	"time"

	"smc-enginev1/internal/model"
)

func prevWindow(low, high float64) *model.SessionWindow {
	return &model.SessionWindow{
		Type:      model.SessionLondon,
		High:      high,
		Low:       low,
		Complete:  true,
		StartTime: time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC),
	}
}

func TestEvaluate_TopOfRange_ShortOnly(t *testing.T) {
	// Range 1.10000–1.10500; 1.10420 sits at 84% — top of range.
	res := Evaluate(1.10420, prevWindow(1.10000, 1.10500))

	if res.Classification != model.PositionTop {
		t.Errorf("expected TOP, got %s", res.Classification)
	}
	if res.Bias != model.BiasShortOnly {
		t.Errorf("expected SHORT_ONLY, got %s", res.Bias)
	}
	if res.Grade != model.GradeA {
		t.Errorf("expected grade A, got %s", res.Grade)
	}
	if res.Position < 0.83 || res.Position > 0.85 {
		t.Errorf("expected position ≈0.84, got %v", res.Position)
	}
}

func TestEvaluate_BottomOfRange_LongOnly(t *testing.T) {
	res := Evaluate(1.10010, prevWindow(1.10000, 1.10500))

	if res.Classification != model.PositionBottom {
		t.Errorf("expected BOTTOM, got %s", res.Classification)
	}
	if res.Bias != model.BiasLongOnly {
		t.Errorf("expected LONG_ONLY, got %s", res.Bias)
	}
	if res.Grade != model.GradeA {
		t.Errorf("expected grade A, got %s", res.Grade)
	}
}

func TestEvaluate_MidRange_NoBias(t *testing.T) {
	res := Evaluate(1.10250, prevWindow(1.10000, 1.10500))

	if res.Classification != model.PositionMiddle {
		t.Errorf("expected MIDDLE, got %s", res.Classification)
	}
	if res.Bias != model.BiasNone {
		t.Errorf("expected NONE, got %s", res.Bias)
	}
}

func TestEvaluate_NearThresholds(t *testing.T) {
	// Just above 0.7 is TOP, just below 0.3 is BOTTOM.
	if res := Evaluate(1.10355, prevWindow(1.10000, 1.10500)); res.Classification != model.PositionTop {
		t.Errorf("pos≈0.71 must be TOP, got %s", res.Classification)
	}
	if res := Evaluate(1.10145, prevWindow(1.10000, 1.10500)); res.Classification != model.PositionBottom {
		t.Errorf("pos≈0.29 must be BOTTOM, got %s", res.Classification)
	}
	// Just inside the middle band on both sides.
	if res := Evaluate(1.10345, prevWindow(1.10000, 1.10500)); res.Classification != model.PositionMiddle {
		t.Errorf("pos≈0.69 must be MIDDLE, got %s", res.Classification)
	}
	if res := Evaluate(1.10155, prevWindow(1.10000, 1.10500)); res.Classification != model.PositionMiddle {
		t.Errorf("pos≈0.31 must be MIDDLE, got %s", res.Classification)
	}
}

func TestEvaluate_PositionClamped(t *testing.T) {
	above := Evaluate(1.20000, prevWindow(1.10000, 1.10500))
	if above.Position != 1 {
		t.Errorf("expected clamp to 1, got %v", above.Position)
	}
	below := Evaluate(1.00000, prevWindow(1.10000, 1.10500))
	if below.Position != 0 {
		t.Errorf("expected clamp to 0, got %v", below.Position)
	}
}

func TestEvaluate_DegradedInputs(t *testing.T) {
	cases := []struct {
		name string
		prev *model.SessionWindow
	}{
		{"nil previous", nil},
		{"incomplete previous", &model.SessionWindow{High: 1.2, Low: 1.1}},
		{"zero range", &model.SessionWindow{High: 1.1, Low: 1.1, Complete: true}},
		{"inverted range", &model.SessionWindow{High: 1.1, Low: 1.2, Complete: true}},
	}

	for _, tc := range cases {
		res := Evaluate(1.10420, tc.prev)
		if res.Grade != model.GradeNoTrade {
			t.Errorf("%s: expected NO_TRADE, got %s", tc.name, res.Grade)
		}
		if res.Bias != model.BiasNone {
			t.Errorf("%s: expected NONE bias, got %s", tc.name, res.Bias)
		}
		if res.Grade.Tradeable() {
			t.Errorf("%s: NO_TRADE must not be tradeable", tc.name)
		}
	}
}
