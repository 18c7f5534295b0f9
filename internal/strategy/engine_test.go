package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"smc-enginev1/config"
	"smc-enginev1/internal/candlestore"
	"smc-enginev1/internal/execution"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/institutional"
	"smc-enginev1/internal/model"
	"smc-enginev1/internal/session"
)

type recordingListener struct {
	candles []model.Candle
}

func (r *recordingListener) OnCandle(c model.Candle) { r.candles = append(r.candles, c) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func engineStrategy() config.Strategy {
	return config.Strategy{
		InstitutionalEnabled:  true,
		Symbols:               []string{"EURUSD"},
		Session:               session.DefaultBoundaries(),
		SweepBufferPips:       0.5,
		MinGapPips:            1.0,
		SwingWing:             2,
		WaitFVGMinutes:        30,
		WaitMitigationMinutes: 60,
		WaitEntryMinutes:      30,
		CooldownMinutes:       15,
		MaxTradesPerSession:   2,
		OrderSize:             0.1,
		StopBufferPips:        2.0,
		RiskReward:            2.0,
		InFlightTimeoutSec:    30,
	}
}

func engineCandle(min int) model.Candle {
	return model.Candle{
		Symbol: "EURUSD",
		TF:     model.TFM5,
		TS:     time.Date(2024, 3, 5, 12, min, 0, 0, time.UTC),
		Open:   1.1030, High: 1.1040, Low: 1.1020, Close: 1.1030,
	}
}

func TestEngine_StepOrderAndHooks(t *testing.T) {
	instruments := map[string]model.Instrument{
		"EURUSD": {Symbol: "EURUSD", PipSize: 0.0001, Digits: 5, LotSize: 100_000},
	}
	locks := inflight.NewTable(30*time.Second, quietLogger())
	broker := execution.NewPaperBroker(0, instruments)

	e := NewEngine(locks, broker, nil, quietLogger())

	steps := 0
	e.OnStep = func(time.Duration) { steps++ }

	lis := &recordingListener{}
	e.AddListener(lis)
	e.AddListener(broker)

	mgr := institutional.New(engineStrategy(), instruments, candlestore.New(64), locks, broker, nil, quietLogger())
	e.Register(mgr)

	e.step(engineCandle(0))
	e.step(engineCandle(5))

	if steps != 2 {
		t.Errorf("expected 2 OnStep calls, got %d", steps)
	}
	if len(lis.candles) != 2 {
		t.Errorf("listener must see every candle, got %d", len(lis.candles))
	}
	// The broker listener ran: the simulated market has a price now.
	if _, open := broker.OpenPosition("EURUSD"); open {
		t.Error("no position expected from neutral candles")
	}
}

func TestEngine_RunStopsOnChannelClose(t *testing.T) {
	locks := inflight.NewTable(30*time.Second, quietLogger())
	e := NewEngine(locks, nil, nil, quietLogger())

	candleCh := make(chan model.Candle, 10)
	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), candleCh)
		close(done)
	}()

	candleCh <- engineCandle(0)
	close(candleCh)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run must return when the candle channel closes")
	}
}

func TestEngine_RunStopsOnContextCancel(t *testing.T) {
	locks := inflight.NewTable(30*time.Second, quietLogger())
	e := NewEngine(locks, nil, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	candleCh := make(chan model.Candle)
	done := make(chan struct{})
	go func() {
		e.Run(ctx, candleCh)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run must return on context cancellation")
	}
}

func TestEngine_WatchdogUsesInjectedClock(t *testing.T) {
	locks := inflight.NewTable(30*time.Second, quietLogger())
	e := NewEngine(locks, nil, nil, quietLogger())

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	locks.SetClock(func() time.Time { return now })
	e.SetClock(func() time.Time { return now })

	locks.TryAcquire("EURUSD")

	e.step(engineCandle(0))
	if locks.ActiveCount("EURUSD") != 1 {
		t.Fatal("fresh lock must survive the watchdog")
	}

	// Candle time jumps past the lock timeout: the per-step watchdog evicts.
	now = now.Add(31 * time.Second)
	e.step(engineCandle(5))
	if locks.ActiveCount("EURUSD") != 0 {
		t.Error("expired lock must be evicted by the step watchdog")
	}
}

func TestEngine_DrainDeliversPendingCloses(t *testing.T) {
	instruments := map[string]model.Instrument{
		"EURUSD": {Symbol: "EURUSD", PipSize: 0.0001, Digits: 5, LotSize: 100_000},
	}
	locks := inflight.NewTable(30*time.Second, quietLogger())
	broker := execution.NewPaperBroker(0, instruments)
	e := NewEngine(locks, broker, nil, quietLogger())

	// Open a position directly, then trigger its stop on a candle.
	broker.OnCandle(engineCandle(0))
	res := broker.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol:    "EURUSD",
		Direction: model.DirectionBuy,
		Size:      0.1,
		StopLoss:  1.1000,
	})
	if !res.Success {
		t.Fatalf("paper order failed: %s", res.ErrorMessage)
	}

	stop := engineCandle(5)
	stop.Low = 1.0990
	broker.OnCandle(stop)

	// The close sits in the broker channel; Drain consumes it synchronously.
	e.Drain()
	select {
	case <-broker.Closes():
		t.Error("Drain must have consumed the pending close")
	default:
	}
}
