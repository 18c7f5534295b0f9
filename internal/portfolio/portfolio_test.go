package portfolio

import (
	"math"
	"testing"
	"time"

	"smc-enginev1/internal/model"
)

func pos(orderID, symbol string, dir model.Direction, size, entry float64) model.Position {
	return model.Position{
		Symbol:     symbol,
		Direction:  dir,
		Size:       size,
		EntryPrice: entry,
		OrderID:    orderID,
		OpenedAt:   time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
	}
}

func mark(symbol string, price float64) model.Candle {
	return model.Candle{Symbol: symbol, TF: model.TFM5, Close: price}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPortfolio_OpenCloseLifecycle(t *testing.T) {
	pf := New()

	pf.Open(pos("o1", "EURUSD", model.DirectionBuy, 0.1, 1.1000))
	pf.Open(pos("o2", "GBPUSD", model.DirectionSell, 0.2, 1.2700))

	if pf.OpenCount() != 2 {
		t.Fatalf("expected 2 open positions, got %d", pf.OpenCount())
	}

	closed, ok := pf.Close("o1")
	if !ok || closed.Symbol != "EURUSD" {
		t.Fatalf("expected to close o1, got ok=%v %+v", ok, closed)
	}
	if pf.OpenCount() != 1 {
		t.Errorf("expected 1 open position, got %d", pf.OpenCount())
	}

	if _, ok := pf.Close("o1"); ok {
		t.Error("double close must report not found")
	}
}

func TestPortfolio_UnrealizedPnL(t *testing.T) {
	pf := New()
	pf.Open(pos("o1", "EURUSD", model.DirectionBuy, 0.1, 1.1000))
	pf.Open(pos("o2", "GBPUSD", model.DirectionSell, 0.2, 1.2700))

	// No marks yet: zero contribution.
	if pnl := pf.TotalUnrealizedPnL(); pnl != 0 {
		t.Errorf("expected 0 before first mark, got %v", pnl)
	}

	pf.OnCandle(mark("EURUSD", 1.1050)) // long +0.0050 * 0.1
	pf.OnCandle(mark("GBPUSD", 1.2680)) // short +0.0020 * 0.2

	want := 0.0050*0.1 + 0.0020*0.2
	if pnl := pf.TotalUnrealizedPnL(); !approx(pnl, want) {
		t.Errorf("expected unrealized %v, got %v", want, pnl)
	}
}

func TestPnLTracker_RealizedAndWinLoss(t *testing.T) {
	p := NewPnLTracker()

	win := model.ClosedPosition{
		Position:   pos("o1", "EURUSD", model.DirectionBuy, 0.1, 1.1000),
		ClosePrice: 1.1040,
		Reason:     "TP",
	}
	loss := model.ClosedPosition{
		Position:   pos("o2", "EURUSD", model.DirectionSell, 0.1, 1.1000),
		ClosePrice: 1.1020,
		Reason:     "SL",
	}

	if got := p.RecordClose(win); !approx(got, 0.0040*0.1) {
		t.Errorf("expected win pnl %v, got %v", 0.0040*0.1, got)
	}
	if got := p.RecordClose(loss); !approx(got, -0.0020*0.1) {
		t.Errorf("expected loss pnl %v, got %v", -0.0020*0.1, got)
	}

	sum := p.GetSummary(New())
	if sum.Wins != 1 || sum.Losses != 1 || sum.ClosedTrades != 2 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !approx(sum.RealizedPnL, 0.0040*0.1-0.0020*0.1) {
		t.Errorf("unexpected realized total: %v", sum.RealizedPnL)
	}
}

func TestRiskManager_CanTrade(t *testing.T) {
	pf := New()
	rm := NewRiskManager(DefaultRiskLimits(), pf, 10_000)

	if ok, reason := rm.CanTrade("EURUSD", 0.1); !ok {
		t.Fatalf("clean account must allow trading: %s", reason)
	}

	if ok, reason := rm.CanTrade("EURUSD", 10); ok || reason != "position size exceeds limit" {
		t.Errorf("oversize order must be refused, got ok=%v %q", ok, reason)
	}

	for i := 0; i < 3; i++ {
		pf.Open(pos("o"+string(rune('1'+i)), "EURUSD", model.DirectionBuy, 0.1, 1.1))
	}
	if ok, reason := rm.CanTrade("EURUSD", 0.1); ok || reason != "max open positions reached" {
		t.Errorf("position cap must refuse, got ok=%v %q", ok, reason)
	}
}

func TestRiskManager_DailyLossAndReset(t *testing.T) {
	pf := New()
	rm := NewRiskManager(DefaultRiskLimits(), pf, 100_000)

	rm.RecordPnL(-600) // past the 500 daily loss limit

	if ok, reason := rm.CanTrade("EURUSD", 0.1); ok || reason != "max daily loss reached" {
		t.Errorf("daily loss limit must refuse, got ok=%v %q", ok, reason)
	}

	rm.ResetDaily()
	if ok, reason := rm.CanTrade("EURUSD", 0.1); !ok {
		t.Errorf("daily reset must restore trading: %s", reason)
	}
}

func TestRiskManager_DrawdownLimit(t *testing.T) {
	pf := New()
	limits := DefaultRiskLimits()
	limits.MaxDailyLoss = 1e12 // isolate the drawdown check
	rm := NewRiskManager(limits, pf, 10_000)

	rm.RecordPnL(-600) // 6% drawdown > 5% limit

	if ok, _ := rm.CanTrade("EURUSD", 0.1); ok {
		t.Error("drawdown past the limit must refuse trading")
	}
}

type memJournal struct {
	entries []model.Position
	closes  []model.ClosedPosition
}

func (j *memJournal) RecordEntry(p model.Position) error {
	j.entries = append(j.entries, p)
	return nil
}

func (j *memJournal) RecordClose(c model.ClosedPosition) error {
	j.closes = append(j.closes, c)
	return nil
}

func TestAccountant_FullTradeFlow(t *testing.T) {
	pf := New()
	pnl := NewPnLTracker()
	rm := NewRiskManager(DefaultRiskLimits(), pf, 10_000)
	j := &memJournal{}
	acc := NewAccountant(pf, pnl, rm, j)

	var hookRealized float64
	acc.OnClose = func(_ model.ClosedPosition, realized float64) { hookRealized = realized }

	p := pos("o1", "EURUSD", model.DirectionSell, 0.1, 1.1040)
	if err := acc.RecordEntry(p); err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	if pf.OpenCount() != 1 || len(j.entries) != 1 {
		t.Fatal("entry must hit portfolio and journal")
	}

	closed := model.ClosedPosition{Position: p, ClosePrice: 1.1000, Reason: "TP"}
	if err := acc.RecordClose(closed); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if pf.OpenCount() != 0 || len(j.closes) != 1 {
		t.Error("close must hit portfolio and journal")
	}
	if !approx(hookRealized, 0.0040*0.1) {
		t.Errorf("expected OnClose realized %v, got %v", 0.0040*0.1, hookRealized)
	}

	sum := acc.Summary()
	if sum.ClosedTrades != 1 || sum.Wins != 1 || sum.OpenPositions != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestAccountant_NilJournal(t *testing.T) {
	pf := New()
	acc := NewAccountant(pf, NewPnLTracker(), nil, nil)

	p := pos("o1", "EURUSD", model.DirectionBuy, 0.1, 1.1)
	if err := acc.RecordEntry(p); err != nil {
		t.Fatalf("nil journal entry must succeed: %v", err)
	}
	if err := acc.RecordClose(model.ClosedPosition{Position: p, ClosePrice: 1.2}); err != nil {
		t.Fatalf("nil journal close must succeed: %v", err)
	}
}
