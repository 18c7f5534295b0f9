// cmd/paper — Paper-trading backtest runner.
// Replays historical candles from SQLite through the full evaluation loop
// against the paper broker, then prints the account summary. The in-flight
// watchdog runs on candle time, so results are reproducible at any speed.
//
// Config (env vars):
//
//	SQLITE_PATH       — candle database  (default: "data/smc.db")
//	REPLAY_SPEED      — playback multiplier, 0 = as fast as possible (default: "0")
//	REPLAY_FROM       — Unix timestamp lower bound, 0 = all (default: "0")
//	PAPER_EQUITY      — starting equity (default: "10000")
//	PAPER_JOURNAL_DB  — trade journal path, empty disables (default: "")
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"smc-enginev1/config"
	"smc-enginev1/internal/candlestore"
	"smc-enginev1/internal/execution"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/institutional"
	"smc-enginev1/internal/logger"
	"smc-enginev1/internal/marketdata/replay"
	"smc-enginev1/internal/model"
	"smc-enginev1/internal/portfolio"
	sqlitestore "smc-enginev1/internal/store/sqlite"
	"smc-enginev1/internal/strategy"
)

// candleClock tracks the latest replayed candle time so the watchdog and
// timeouts run on simulated time instead of the wall clock.
type candleClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *candleClock) OnCandle(candle model.Candle) {
	c.mu.Lock()
	if candle.TS.After(c.t) {
		c.t = candle.TS
	}
	c.mu.Unlock()
}

func (c *candleClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t.IsZero() {
		return time.Now().UTC()
	}
	return c.t
}

// riskBroker gates orders through the risk manager before the paper fill.
type riskBroker struct {
	inner execution.Broker
	rm    *portfolio.RiskManager
}

func (b *riskBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) model.OrderResult {
	if ok, reason := b.rm.CanTrade(req.Symbol, req.Size); !ok {
		log.Printf("[paper-run] order blocked by risk limits: %s (%s)", req.Symbol, reason)
		return model.OrderResult{Success: false, ErrorMessage: "risk: " + reason}
	}
	return b.inner.PlaceOrder(ctx, req)
}

func (b *riskBroker) Closes() <-chan model.ClosedPosition {
	return b.inner.Closes()
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[paper-run] starting backtest...")

	cfg := config.LoadStaging()
	if err := cfg.Strategy.Validate(); err != nil {
		log.Fatalf("[paper-run] invalid strategy config: %v", err)
	}

	speed := envFloat("REPLAY_SPEED", 0)
	fromTS := envInt64("REPLAY_FROM", 0)
	equity := envFloat("PAPER_EQUITY", 10000)

	slg := logger.Init("paper", slog.LevelWarn)

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[paper-run] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// ---- Account tracking ----
	pf := portfolio.New()
	pnl := portfolio.NewPnLTracker()
	rm := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), pf, equity)

	var journal *execution.Journal
	if path := os.Getenv("PAPER_JOURNAL_DB"); path != "" {
		journal, err = execution.NewJournal(path)
		if err != nil {
			log.Fatalf("[paper-run] journal init failed: %v", err)
		}
		defer journal.Close()
	}

	accountant := portfolio.NewAccountant(pf, pnl, rm, journalOrNil(journal))

	// ---- Broker + engine ----
	paperBroker := execution.NewPaperBroker(0.2, cfg.Instruments)
	broker := &riskBroker{inner: paperBroker, rm: rm}

	clock := &candleClock{}
	locks := inflight.NewTable(time.Duration(cfg.Strategy.InFlightTimeoutSec)*time.Second, slg)
	locks.SetClock(clock.Now)

	store := candlestore.New(4096)
	var sink model.EventSink
	if journal != nil {
		sink = journal
	}
	manager := institutional.New(cfg.Strategy, cfg.Instruments, store, locks, broker, sink, slg)
	manager.SetTradeLog(accountant)

	engine := strategy.NewEngine(locks, broker, nil, slg)
	engine.SetClock(clock.Now)
	engine.AddListener(clock) // first, so everything downstream sees candle time
	engine.AddListener(paperBroker)
	engine.AddListener(pf)
	engine.Register(manager)

	// ---- Replay ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	candleCh := make(chan model.Candle, 5000)
	engineDone := make(chan struct{})
	go func() {
		engine.Run(ctx, candleCh)
		close(engineDone)
	}()

	tfs := []int{model.TFM1, model.TFM5, model.TFM15, model.TFH1}
	replayer := replay.New(reader)
	if err := replayer.Run(ctx, tfs, fromTS, speed, candleCh); err != nil {
		log.Fatalf("[paper-run] replay failed: %v", err)
	}
	close(candleCh)
	<-engineDone
	engine.Drain()

	// ---- Results ----
	summary := accountant.Summary()
	out, _ := json.MarshalIndent(summary, "", "  ")
	log.Printf("[paper-run] account summary:\n%s", out)

	risk, _ := json.MarshalIndent(rm.GetStatus(), "", "  ")
	log.Printf("[paper-run] risk status:\n%s", risk)

	log.Printf("[paper-run] engine state: %s", manager.DebugInfo())
	log.Println("[paper-run] backtest complete.")
}

// journalOrNil keeps the accountant's journal interface nil when no journal
// is configured (a typed nil would dodge the nil check).
func journalOrNil(j *execution.Journal) portfolio.TradeJournal {
	if j == nil {
		return nil
	}
	return j
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
