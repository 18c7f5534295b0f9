// Package strategy runs the evaluation loop: it consumes closed candles from
// the market-data bus, routes them to every registered institutional manager
// and market listener, drains broker-side position closes, and runs the
// in-flight watchdog once per cycle.
package strategy

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"smc-enginev1/internal/execution"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/institutional"
	"smc-enginev1/internal/model"
)

// MarketListener receives every candle before the managers evaluate it. The
// paper broker implements it to keep its simulated market current.
type MarketListener interface {
	OnCandle(c model.Candle)
}

// Engine drives the institutional managers from a single goroutine. All
// manager state is therefore mutated sequentially; only the lock table is
// shared with other processes' loops.
type Engine struct {
	managers  []*institutional.Manager
	listeners []MarketListener
	locks     *inflight.Table
	broker    execution.Broker
	snapshots model.SnapshotStore
	log       *slog.Logger

	snapshotEvery time.Duration

	// OnStep is called with the duration of each evaluation cycle (optional).
	OnStep func(d time.Duration)

	// now is injectable so backtests can run the watchdog on candle time.
	now func() time.Time
}

// NewEngine creates the evaluation loop. snapshots may be nil.
func NewEngine(locks *inflight.Table, broker execution.Broker, snapshots model.SnapshotStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		locks:         locks,
		broker:        broker,
		snapshots:     snapshots,
		log:           log,
		snapshotEvery: 30 * time.Second,
		now:           time.Now,
	}
}

// Register adds a manager to the loop.
func (e *Engine) Register(m *institutional.Manager) {
	e.managers = append(e.managers, m)
}

// AddListener adds a market listener, invoked before manager evaluation.
func (e *Engine) AddListener(l MarketListener) {
	e.listeners = append(e.listeners, l)
}

// SetClock overrides the watchdog time source. Test/backtest hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Run blocks until ctx is cancelled or candleCh is closed.
func (e *Engine) Run(ctx context.Context, candleCh <-chan model.Candle) {
	ticker := time.NewTicker(e.snapshotEvery)
	defer ticker.Stop()

	var closes <-chan model.ClosedPosition
	if e.broker != nil {
		closes = e.broker.Closes()
	}

	e.log.Info("evaluation loop started", slog.Int("managers", len(e.managers)))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("evaluation loop stopped")
			return

		case c, ok := <-candleCh:
			if !ok {
				e.log.Info("candle channel closed, evaluation loop stopped")
				return
			}
			e.step(c)

		case closed, ok := <-closes:
			if !ok {
				closes = nil
				continue
			}
			for _, m := range e.managers {
				m.OnPositionClosed(closed)
			}

		case <-ticker.C:
			e.publishSnapshot(ctx)
		}
	}
}

// step processes one candle: listeners first (so the broker's market state is
// current when an entry fills), then manager evaluation, then the watchdog.
func (e *Engine) step(c model.Candle) {
	start := time.Now()
	for _, l := range e.listeners {
		l.OnCandle(c)
	}
	for _, m := range e.managers {
		m.OnCandle(c)
	}
	e.locks.RunWatchdog(e.now())
	if e.OnStep != nil {
		e.OnStep(time.Since(start))
	}
}

// Drain runs pending broker closes synchronously. Backtest helper: channel
// timing must not decide whether a close lands before the next candle.
func (e *Engine) Drain() {
	if e.broker == nil {
		return
	}
	for {
		select {
		case closed := <-e.broker.Closes():
			for _, m := range e.managers {
				m.OnPositionClosed(closed)
			}
		default:
			return
		}
	}
}

// publishSnapshot writes every manager's status to the snapshot store.
func (e *Engine) publishSnapshot(ctx context.Context) {
	if e.snapshots == nil {
		return
	}
	for _, m := range e.managers {
		payload, err := json.Marshal(m.Status())
		if err != nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := e.snapshots.SaveSnapshotJSON(cctx, payload); err != nil {
			e.log.Warn("snapshot publish failed", slog.String("error", err.Error()))
		}
		cancel()
	}
}
