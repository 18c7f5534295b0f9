package execution

import (
	"context"
	"math"
	"testing"
	"time"

	"smc-enginev1/internal/model"
)

var paperInstruments = map[string]model.Instrument{
	"EURUSD": {Symbol: "EURUSD", PipSize: 0.0001, Digits: 5, LotSize: 100_000},
}

func paperCandle(min int, o, h, l, c float64) model.Candle {
	return model.Candle{
		Symbol: "EURUSD",
		TF:     model.TFM5,
		TS:     time.Date(2024, 3, 5, 12, min, 0, 0, time.UTC),
		Open:   o, High: h, Low: l, Close: c,
	}
}

func TestPaperBroker_FillWithSlippage(t *testing.T) {
	p := NewPaperBroker(0.5, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))

	res := p.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "EURUSD",
		Direction: model.DirectionBuy,
		Size:      0.1,
	})
	if !res.Success || res.OrderID == "" {
		t.Fatalf("expected fill, got %+v", res)
	}
	// Buys fill worse: last close + 0.5 pips.
	if math.Abs(res.ExecutionPrice-1.10305) > 1e-9 {
		t.Errorf("expected fill at 1.10305, got %v", res.ExecutionPrice)
	}

	if _, open := p.OpenPosition("EURUSD"); !open {
		t.Error("expected an open position after fill")
	}
}

func TestPaperBroker_NoPriceNoFill(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)

	res := p.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "EURUSD",
		Direction: model.DirectionBuy,
		Size:      0.1,
	})
	if res.Success {
		t.Error("order before any market data must fail")
	}
}

func TestPaperBroker_OnePositionPerSymbol(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))

	req := model.OrderRequest{Symbol: "EURUSD", Direction: model.DirectionBuy, Size: 0.1}
	if !p.PlaceOrder(context.Background(), req).Success {
		t.Fatal("first order failed")
	}
	if p.PlaceOrder(context.Background(), req).Success {
		t.Error("second order on an open symbol must be refused")
	}
}

func TestPaperBroker_RejectNext(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))
	p.RejectNext = true

	req := model.OrderRequest{Symbol: "EURUSD", Direction: model.DirectionSell, Size: 0.1}
	if p.PlaceOrder(context.Background(), req).Success {
		t.Fatal("RejectNext must fail the next order")
	}
	// One-shot: the next attempt fills.
	if !p.PlaceOrder(context.Background(), req).Success {
		t.Error("rejection must only consume one order")
	}
}

func TestPaperBroker_StopLossClose(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))

	p.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "EURUSD",
		Direction: model.DirectionBuy,
		Size:      0.1,
		StopLoss:  1.1000,
	})

	p.OnCandle(paperCandle(5, 1.1030, 1.1035, 1.0995, 1.1005))

	select {
	case closed := <-p.Closes():
		if closed.Reason != "SL" {
			t.Errorf("expected SL close, got %s", closed.Reason)
		}
		if closed.ClosePrice != 1.1000 {
			t.Errorf("expected close at the stop, got %v", closed.ClosePrice)
		}
	default:
		t.Fatal("expected a broker-side close")
	}
	if _, open := p.OpenPosition("EURUSD"); open {
		t.Error("position must be gone after the stop")
	}
}

func TestPaperBroker_StopWinsOverTarget(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))

	p.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:     "EURUSD",
		Direction:  model.DirectionBuy,
		Size:       0.1,
		StopLoss:   1.1000,
		TakeProfit: 1.1060,
	})

	// One candle spans both levels: conservative fill at the stop.
	p.OnCandle(paperCandle(5, 1.1030, 1.1070, 1.0990, 1.1050))

	closed := <-p.Closes()
	if closed.Reason != "SL" {
		t.Errorf("stop must win when a candle spans both levels, got %s", closed.Reason)
	}
}

func TestPaperBroker_SellSideExits(t *testing.T) {
	p := NewPaperBroker(0, paperInstruments)
	p.OnCandle(paperCandle(0, 1.1030, 1.1040, 1.1020, 1.1030))

	p.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:     "EURUSD",
		Direction:  model.DirectionSell,
		Size:       0.1,
		StopLoss:   1.1060,
		TakeProfit: 1.1000,
	})

	// Target: candle low reaches the short's take-profit.
	p.OnCandle(paperCandle(5, 1.1020, 1.1030, 1.0995, 1.1005))

	closed := <-p.Closes()
	if closed.Reason != "TP" || closed.ClosePrice != 1.1000 {
		t.Errorf("expected short TP at 1.1000, got %s at %v", closed.Reason, closed.ClosePrice)
	}
}
