// Package institutional implements the Smart-Money-Concepts institutional
// engine: a per-symbol state machine that sequences session context,
// liquidity sweep, fair-value-gap, mitigation and entry into a single trading
// decision per candle close, under the in-flight order lock discipline.
//
// Evaluation is pure computation over already-stored candles; order
// submission is the only blocking call and happens with the symbol's
// in-flight lock held and the manager's state lock released, so status
// queries never wait on a broker. Missing data (no previous session, short
// candle history) degrades to no-trade — the machine stays in IDLE rather
// than crashing the evaluation loop.
package institutional

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"smc-enginev1/config"
	"smc-enginev1/internal/candlestore"
	"smc-enginev1/internal/execution"
	"smc-enginev1/internal/fvg"
	"smc-enginev1/internal/indicator"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/liquidity"
	"smc-enginev1/internal/logger"
	"smc-enginev1/internal/marketcontext"
	"smc-enginev1/internal/model"
	"smc-enginev1/internal/session"
)

// EntryTrigger decides whether price action at the mitigated gap confirms an
// entry. The precise trigger rule varies across desks, so it is pluggable;
// the default fires when a candle closes beyond the gap midpoint in the trade
// direction.
type EntryTrigger func(gap *model.FVG, c model.Candle, dir model.Direction) bool

// DefaultEntryTrigger confirms on a close through the gap midpoint in the
// trade direction.
func DefaultEntryTrigger(gap *model.FVG, c model.Candle, dir model.Direction) bool {
	if gap == nil {
		return false
	}
	if dir == model.DirectionSell {
		return c.Close < gap.Midpoint
	}
	return c.Close > gap.Midpoint
}

// TradeLog persists trade lifecycle records. The execution journal implements
// it; nil disables persistence (backtests that only want the summary).
type TradeLog interface {
	RecordEntry(pos model.Position) error
	RecordClose(closed model.ClosedPosition) error
}

// Hooks are optional observability callbacks, wired to prometheus in main.
type Hooks struct {
	OnTransition  func(symbol string, from, to State)
	OnSweep       func(symbol string)
	OnFVG         func(symbol string)
	OnMitigation  func(symbol string)
	OnEntry       func(symbol string)
	OnLockBlocked func(symbol string)
}

// symbolState is all mutable per-symbol state. Owned exclusively by the
// manager; no other symbol's evaluation ever touches it.
type symbolState struct {
	session *session.Engine

	pools    []model.LiquidityPool
	fvgState model.FVGState

	state      State
	stateSince time.Time

	tradesThisSession int

	// Setup context, valid from the IDLE→WAIT_FVG transition on.
	tradeDir      model.Direction
	fvgDir        model.FVGDirection
	correlationID string

	lastContext model.ContextResult
	lastSweep   model.SweepResult
	lastSession model.SessionType
	position    *model.Position
}

// Manager composes the session, context, liquidity and FVG engines per symbol
// and drives each symbol's FSM. One manager instance belongs to one (user,
// bot) evaluation loop; only the in-flight lock table is shared across
// managers.
type Manager struct {
	mu  sync.RWMutex
	cfg config.Strategy

	instruments map[string]model.Instrument
	store       *candlestore.Store
	locks       *inflight.Table
	broker      execution.Broker
	sink        model.EventSink
	log         *slog.Logger

	symbols  map[string]*symbolState
	trigger  EntryTrigger
	hooks    Hooks
	tradeLog TradeLog
}

// New creates a manager for the configured symbols. sink and hooks may be
// nil/zero; trigger nil falls back to DefaultEntryTrigger.
func New(cfg config.Strategy, instruments map[string]model.Instrument, store *candlestore.Store,
	locks *inflight.Table, broker execution.Broker, sink model.EventSink, log *slog.Logger) *Manager {

	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		cfg:         cfg,
		instruments: instruments,
		store:       store,
		locks:       locks,
		broker:      broker,
		sink:        sink,
		log:         log,
		symbols:     make(map[string]*symbolState, len(cfg.Symbols)),
		trigger:     DefaultEntryTrigger,
	}
	for _, sym := range cfg.Symbols {
		m.symbols[sym] = &symbolState{
			session: session.New(sym, cfg.Session),
			state:   StateIdle,
		}
	}
	return m
}

// SetHooks installs observability callbacks. Call before the loop starts.
func (m *Manager) SetHooks(h Hooks) { m.hooks = h }

// SetTradeLog installs the trade persistence sink.
func (m *Manager) SetTradeLog(t TradeLog) { m.tradeLog = t }

// SetEntryTrigger overrides the entry-confirmation predicate.
func (m *Manager) SetEntryTrigger(t EntryTrigger) {
	if t != nil {
		m.trigger = t
	}
}

// UpdateConfig swaps the strategy record without losing in-flight FSM state.
func (m *Manager) UpdateConfig(cfg config.Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	for _, st := range m.symbols {
		st.session.SetBounds(cfg.Session)
	}
	m.log.Info("strategy config reloaded")
}

// Bootstrap seeds a symbol's session state from historical candles so live
// tracking starts with a populated previous session.
func (m *Manager) Bootstrap(symbol string, candles []model.Candle, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.symbols[symbol]
	if !ok {
		return
	}
	for _, c := range candles {
		m.store.Append(c)
	}
	st.session.Bootstrap(candles, now)
}

// OnCandle feeds one candle into the manager. All timeframes are stored;
// evaluation runs once per closed M5 candle for a configured symbol.
func (m *Manager) OnCandle(c model.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store.Append(c)

	st, ok := m.symbols[c.Symbol]
	if !ok || c.Forming || c.TF != model.TFM5 {
		return
	}
	m.evaluate(c.Symbol, st, c)
}

// OnPositionClosed advances ENTERED→COOLDOWN on broker confirmation of a
// close, releasing the in-flight lock and counting the trade against the
// session budget.
func (m *Manager) OnPositionClosed(closed model.ClosedPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sym := closed.Position.Symbol
	st, ok := m.symbols[sym]
	if !ok || st.state != StateEntered {
		return
	}

	m.locks.Clear(sym, "position closed")
	st.tradesThisSession++
	st.position = nil
	if m.tradeLog != nil {
		if err := m.tradeLog.RecordClose(closed); err != nil {
			m.log.Warn("trade journal write failed", slog.String("error", err.Error()))
		}
	}
	m.emit(model.EngineEvent{
		TS:            closed.ClosedAt,
		Symbol:        sym,
		Type:          model.EventPositionClose,
		Detail:        fmt.Sprintf("%s at %.5f (%s)", closed.Position.Direction, closed.ClosePrice, closed.Reason),
		CorrelationID: closed.Position.CorrelationID,
	})
	m.transition(sym, st, StateCooldown, closed.ClosedAt)
}

// evaluate runs one full pipeline pass for a closed M5 candle.
// Caller holds m.mu.
func (m *Manager) evaluate(sym string, st *symbolState, c model.Candle) {
	now := c.TS

	if st.session.Update(c) {
		st.tradesThisSession = 0
	}
	st.lastSession = st.session.Current(now)

	m.checkTimeout(sym, st, now)

	if !m.cfg.InstitutionalEnabled {
		return
	}

	// Rebuild pools every cycle; merge-by-key keeps sweep status monotonic.
	var swingHighs, swingLows []model.SwingPoint
	if m.cfg.IncludeSwingPoints {
		swingHighs, swingLows = indicator.Swings(m.store.Last(sym, model.TFM15, 64), m.cfg.SwingWing)
	}
	st.pools = liquidity.BuildPools(st.session.State(), swingHighs, swingLows, st.pools, m.liqCfg(sym))

	st.lastContext = marketcontext.Evaluate(c.Close, st.session.State().Previous)

	sweep, idx := liquidity.DetectSweep(st.pools, c, m.liqCfg(sym))
	if sweep.Detected {
		liquidity.MarkSwept(st.pools, idx, sweep, c)
		st.lastSweep = sweep
		if m.hooks.OnSweep != nil {
			m.hooks.OnSweep(sym)
		}
		m.emit(model.EngineEvent{
			TS:     now,
			Symbol: sym,
			Type:   model.EventSweep,
			Detail: fmt.Sprintf("%s sweep of %s", sweep.Type, sweep.PoolKey),
		})
	}

	switch st.state {
	case StateIdle:
		m.stepIdle(sym, st, sweep, now)
	case StateWaitFVG:
		m.stepWaitFVG(sym, st, now)
	case StateWaitMitigation:
		m.stepWaitMitigation(sym, st, c, now)
	case StateWaitEntry:
		m.stepWaitEntry(sym, st, c, now)
	case StateEntered, StateCooldown:
		// ENTERED ends on broker confirmation; COOLDOWN on its timeout.
	}
}

// stepIdle arms a setup when a tradeable context and a confirmed sweep agree
// on direction this cycle.
func (m *Manager) stepIdle(sym string, st *symbolState, sweep model.SweepResult, now time.Time) {
	if !sweep.Detected || !sweep.Confirmed {
		return
	}
	ctx := st.lastContext
	if !ctx.Grade.Tradeable() || ctx.Bias == model.BiasNone {
		return
	}

	// A HIGH sweep trades short into a BEARISH gap; LOW is the mirror. The
	// direction must agree with the session-range bias.
	var dir model.Direction
	var gapDir model.FVGDirection
	if sweep.Type == model.SweepHigh {
		dir, gapDir = model.DirectionSell, model.FVGBearish
		if ctx.Bias != model.BiasShortOnly {
			return
		}
	} else {
		dir, gapDir = model.DirectionBuy, model.FVGBullish
		if ctx.Bias != model.BiasLongOnly {
			return
		}
	}

	st.tradeDir = dir
	st.fvgDir = gapDir
	st.correlationID = logger.NewCorrelationID()
	m.transition(sym, st, StateWaitFVG, now)
}

func (m *Manager) stepWaitFVG(sym string, st *symbolState, now time.Time) {
	window, ok := m.store.Window3(sym, model.TFM5)
	if !ok {
		return
	}
	if !fvg.Detect(window, st.fvgDir, &st.fvgState, now, m.fvgCfg(sym)) {
		return
	}
	if m.hooks.OnFVG != nil {
		m.hooks.OnFVG(sym)
	}
	gap := st.fvgState.Active
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventFVG,
		Detail:        fmt.Sprintf("%s gap %.5f–%.5f (%.1f pips)", gap.Direction, gap.Low, gap.High, gap.GapPips),
		CorrelationID: st.correlationID,
	})
	m.transition(sym, st, StateWaitMitigation, now)
}

func (m *Manager) stepWaitMitigation(sym string, st *symbolState, c model.Candle, now time.Time) {
	if !fvg.CheckMitigation(&st.fvgState, c) {
		return
	}
	if m.hooks.OnMitigation != nil {
		m.hooks.OnMitigation(sym)
	}
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventMitigation,
		Detail:        fmt.Sprintf("gap mitigated at %.5f", st.fvgState.Active.MitigatedPrice),
		CorrelationID: st.correlationID,
	})
	m.transition(sym, st, StateWaitEntry, now)
}

// stepWaitEntry fires the entry once the trigger confirms, the session budget
// allows it and the in-flight lock is won. Lock contention and broker
// rejection both leave the symbol in WAIT_ENTRY; only this state's timeout or
// the budget abandons the setup.
func (m *Manager) stepWaitEntry(sym string, st *symbolState, c model.Candle, now time.Time) {
	if st.tradesThisSession >= m.cfg.MaxTradesPerSession {
		m.log.Info("session trade budget exhausted, abandoning setup",
			slog.String("symbol", sym), slog.Int("trades", st.tradesThisSession))
		m.abandon(sym, st, now)
		return
	}
	if !m.trigger(st.fvgState.Active, c, st.tradeDir) {
		return
	}

	res := m.locks.TryAcquire(sym)
	if !res.Acquired {
		if m.hooks.OnLockBlocked != nil {
			m.hooks.OnLockBlocked(sym)
		}
		m.emit(model.EngineEvent{
			TS:     now,
			Symbol: sym,
			Type:   model.EventLockBlocked,
			Detail: res.Reason,
		})
		return // normal outcome: skip this cycle's entry
	}
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventLockAcquired,
		CorrelationID: res.CorrelationID,
	})

	req := m.buildOrder(sym, st, c, res.CorrelationID)
	ctx, cancel := context.WithTimeout(context.Background(), m.locks.Timeout())

	// A live submission can block for the full in-flight timeout. The state
	// lock is released while the call is outstanding so status reads and the
	// other symbols stay responsive; the in-flight lock already serializes
	// this symbol's entry, and the evaluation loop is the only state writer.
	m.mu.Unlock()
	result := m.broker.PlaceOrder(ctx, req)
	m.mu.Lock()
	cancel()

	if !result.Success {
		// Broker rejection: release the lock, keep the setup alive in
		// WAIT_ENTRY, and leave the session budget untouched.
		m.locks.Clear(sym, "order rejected")
		m.emit(model.EngineEvent{
			TS:            now,
			Symbol:        sym,
			Type:          model.EventLockReleased,
			Detail:        "order rejected",
			CorrelationID: res.CorrelationID,
		})
		m.emit(model.EngineEvent{
			TS:            now,
			Symbol:        sym,
			Type:          model.EventOrderRejected,
			Detail:        result.ErrorMessage,
			CorrelationID: res.CorrelationID,
		})
		m.log.Warn("order rejected",
			slog.String("symbol", sym),
			slog.String("error", result.ErrorMessage),
			slog.String(logger.CorrelationKey, res.CorrelationID))
		return
	}

	// Confirmed: the submission is no longer in flight.
	m.locks.Clear(sym, "order confirmed")
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventLockReleased,
		Detail:        "order confirmed",
		CorrelationID: res.CorrelationID,
	})
	st.position = &model.Position{
		Symbol:        sym,
		Direction:     req.Direction,
		Size:          req.Size,
		EntryPrice:    result.ExecutionPrice,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		OrderID:       result.OrderID,
		CorrelationID: res.CorrelationID,
		OpenedAt:      now,
	}
	if m.tradeLog != nil {
		if err := m.tradeLog.RecordEntry(*st.position); err != nil {
			m.log.Warn("trade journal write failed", slog.String("error", err.Error()))
		}
	}
	if m.hooks.OnEntry != nil {
		m.hooks.OnEntry(sym)
	}
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventOrderPlaced,
		Detail:        fmt.Sprintf("%s %s %.2f lots at %.5f", req.Direction, sym, req.Size, result.ExecutionPrice),
		CorrelationID: res.CorrelationID,
	})
	m.transition(sym, st, StateEntered, now)
}

// buildOrder derives SL/TP from the gap zone and the configured risk model.
func (m *Manager) buildOrder(sym string, st *symbolState, c model.Candle, correlationID string) model.OrderRequest {
	pip := m.pipSize(sym)
	gap := st.fvgState.Active

	var sl, tp float64
	if gap != nil {
		if st.tradeDir == model.DirectionSell {
			sl = gap.High + m.cfg.StopBufferPips*pip
			tp = c.Close - (sl-c.Close)*m.cfg.RiskReward
		} else {
			sl = gap.Low - m.cfg.StopBufferPips*pip
			tp = c.Close + (c.Close-sl)*m.cfg.RiskReward
		}
	}

	return model.OrderRequest{
		Symbol:        sym,
		Direction:     st.tradeDir,
		Size:          m.cfg.OrderSize,
		StopLoss:      sl,
		TakeProfit:    tp,
		CorrelationID: correlationID,
		Reason:        fmt.Sprintf("sweep %s + %s FVG mitigation", st.lastSweep.Type, st.fvgDir),
	}
}

// checkTimeout abandons any WAIT_* state whose deadline passed and ends
// COOLDOWN. Measured from state entry.
func (m *Manager) checkTimeout(sym string, st *symbolState, now time.Time) {
	timeout := stateTimeout(st.state, &m.cfg)
	if timeout <= 0 || now.Sub(st.stateSince) <= timeout {
		return
	}
	switch st.state {
	case StateWaitFVG, StateWaitMitigation, StateWaitEntry:
		m.log.Info("setup timed out",
			slog.String("symbol", sym), slog.String("state", string(st.state)))
		m.abandon(sym, st, now)
	case StateCooldown:
		m.transition(sym, st, StateIdle, now)
	}
}

// abandon drops the active setup and returns to IDLE.
func (m *Manager) abandon(sym string, st *symbolState, now time.Time) {
	fvg.Reset(&st.fvgState)
	st.tradeDir = ""
	st.fvgDir = ""
	m.transition(sym, st, StateIdle, now)
}

// transition records a state change. All transitions flow through here.
func (m *Manager) transition(sym string, st *symbolState, to State, now time.Time) {
	from := st.state
	if from == to {
		return
	}
	st.state = to
	st.stateSince = now

	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(sym, from, to)
	}
	m.emit(model.EngineEvent{
		TS:            now,
		Symbol:        sym,
		Type:          model.EventTransition,
		Detail:        string(from) + "→" + string(to),
		CorrelationID: st.correlationID,
	})
	m.log.Info("fsm transition",
		slog.String("symbol", sym),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String(logger.CorrelationKey, st.correlationID))
}

func (m *Manager) emit(ev model.EngineEvent) {
	if m.sink == nil {
		return
	}
	if err := m.sink.RecordEvent(ev); err != nil {
		m.log.Warn("event sink write failed", slog.String("error", err.Error()))
	}
}

func (m *Manager) liqCfg(sym string) liquidity.Config {
	return liquidity.Config{
		SweepBufferPips:    m.cfg.SweepBufferPips,
		IncludeSwingPoints: m.cfg.IncludeSwingPoints,
		MaxSwingPools:      m.cfg.MaxSwingPools,
		PipSize:            m.pipSize(sym),
	}
}

func (m *Manager) fvgCfg(sym string) fvg.Config {
	return fvg.Config{
		MinGapPips: m.cfg.MinGapPips,
		PipSize:    m.pipSize(sym),
		MaxHistory: 32,
	}
}

func (m *Manager) pipSize(sym string) float64 {
	if inst, ok := m.instruments[sym]; ok && inst.PipSize > 0 {
		return inst.PipSize
	}
	return 0.0001
}

// ── Read-only snapshots ──

// FSMState returns the current state for a symbol (IDLE for unknown symbols).
func (m *Manager) FSMState(symbol string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.symbols[symbol]; ok {
		return st.state
	}
	return StateIdle
}

// TradesThisSession returns the trade count against the session budget.
func (m *Manager) TradesThisSession(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.symbols[symbol]; ok {
		return st.tradesThisSession
	}
	return 0
}

// CanTradeInSession reports whether the session budget allows another trade.
func (m *Manager) CanTradeInSession(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.symbols[symbol]; ok {
		return st.tradesThisSession < m.cfg.MaxTradesPerSession
	}
	return false
}

// CurrentSession returns the session type last observed for a symbol.
func (m *Manager) CurrentSession(symbol string) model.SessionType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.symbols[symbol]; ok && st.lastSession != "" {
		return st.lastSession
	}
	return model.SessionOff
}

// SymbolStatus is the serializable per-symbol snapshot for status endpoints
// and the Redis snapshot store.
type SymbolStatus struct {
	Symbol            string              `json:"symbol"`
	State             State               `json:"state"`
	StateSince        time.Time           `json:"state_since"`
	Session           model.SessionType   `json:"session"`
	Context           model.ContextResult `json:"context"`
	Pools             int                 `json:"pools"`
	SweptPools        int                 `json:"swept_pools"`
	ActiveFVG         *model.FVG          `json:"active_fvg,omitempty"`
	TradesThisSession int                 `json:"trades_this_session"`
	Position          *model.Position     `json:"position,omitempty"`
}

// Status returns snapshots for all symbols, sorted by symbol.
func (m *Manager) Status() []SymbolStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SymbolStatus, 0, len(m.symbols))
	for sym, st := range m.symbols {
		swept := 0
		for i := range st.pools {
			if st.pools[i].Swept {
				swept++
			}
		}
		out = append(out, SymbolStatus{
			Symbol:            sym,
			State:             st.state,
			StateSince:        st.stateSince,
			Session:           st.lastSession,
			Context:           st.lastContext,
			Pools:             len(st.pools),
			SweptPools:        swept,
			ActiveFVG:         st.fvgState.Active,
			TradesThisSession: st.tradesThisSession,
			Position:          st.position,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// DebugInfo returns a human-readable one-line snapshot per symbol, for
// operational visibility only — never control flow.
func (m *Manager) DebugInfo() string {
	statuses := m.Status()
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		fvgDesc := "none"
		if s.ActiveFVG != nil {
			fvgDesc = fmt.Sprintf("%s(mitigated=%v)", s.ActiveFVG.Direction, s.ActiveFVG.Mitigated)
		}
		parts = append(parts, fmt.Sprintf("%s state=%s session=%s ctx=%s/%s/%s pools=%d(swept=%d) fvg=%s trades=%d",
			s.Symbol, s.State, s.Session,
			s.Context.Classification, s.Context.Bias, s.Context.Grade,
			s.Pools, s.SweptPools, fvgDesc, s.TradesThisSession))
	}
	return strings.Join(parts, " | ")
}
