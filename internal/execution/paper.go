package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"smc-enginev1/internal/model"
)

// PaperBroker simulates order execution without real broker calls.
// Fills happen at the last seen price plus simulated slippage; stop-loss and
// take-profit levels are checked against every subsequent candle and closes
// are delivered on the Closes channel, the same way a live adapter reports
// broker-side closes.
type PaperBroker struct {
	mu        sync.Mutex
	lastPrice map[string]float64
	positions map[string]model.Position // one open position per symbol
	orderSeq  int64
	closeCh   chan model.ClosedPosition

	// Simulation parameters
	slippagePips float64
	instruments  map[string]model.Instrument

	// RejectNext forces the next PlaceOrder to fail. Test hook for the
	// broker-rejection FSM path.
	RejectNext bool
}

// NewPaperBroker creates a paper trading broker.
// slippagePips is applied against the trade direction on every fill.
func NewPaperBroker(slippagePips float64, instruments map[string]model.Instrument) *PaperBroker {
	return &PaperBroker{
		lastPrice:    make(map[string]float64, 8),
		positions:    make(map[string]model.Position, 8),
		closeCh:      make(chan model.ClosedPosition, 64),
		slippagePips: slippagePips,
		instruments:  instruments,
	}
}

// Closes returns the channel of broker-side position closes.
func (p *PaperBroker) Closes() <-chan model.ClosedPosition {
	return p.closeCh
}

// PlaceOrder fills immediately at the last seen price with slippage.
func (p *PaperBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) model.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RejectNext {
		p.RejectNext = false
		return model.OrderResult{Success: false, ErrorMessage: "rejected by paper broker"}
	}

	price, ok := p.lastPrice[req.Symbol]
	if !ok {
		return model.OrderResult{Success: false, ErrorMessage: fmt.Sprintf("no market price for %s", req.Symbol)}
	}
	if _, open := p.positions[req.Symbol]; open {
		return model.OrderResult{Success: false, ErrorMessage: fmt.Sprintf("position already open for %s", req.Symbol)}
	}

	pip := 0.0001
	if inst, ok := p.instruments[req.Symbol]; ok && inst.PipSize > 0 {
		pip = inst.PipSize
	}
	slip := p.slippagePips * pip
	fill := price
	if req.Direction == model.DirectionBuy {
		fill += slip // buy worse
	} else {
		fill -= slip // sell worse
	}

	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	p.positions[req.Symbol] = model.Position{
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		Size:          req.Size,
		EntryPrice:    fill,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		OrderID:       orderID,
		CorrelationID: req.CorrelationID,
		OpenedAt:      time.Now().UTC(),
	}

	log.Printf("[paper] %s %s size=%v fill=%v sl=%v tp=%v order=%s reason=%s",
		req.Direction, req.Symbol, req.Size, fill, req.StopLoss, req.TakeProfit, orderID, req.Reason)

	return model.OrderResult{Success: true, OrderID: orderID, ExecutionPrice: fill}
}

// OnCandle updates the simulated market and closes any open position whose
// stop-loss or take-profit the candle's range touched. Stop-loss wins when a
// single candle spans both levels.
func (p *PaperBroker) OnCandle(c model.Candle) {
	p.mu.Lock()
	p.lastPrice[c.Symbol] = c.Close

	pos, open := p.positions[c.Symbol]
	if !open {
		p.mu.Unlock()
		return
	}

	closePrice, reason := checkExit(pos, c)
	if reason == "" {
		p.mu.Unlock()
		return
	}
	delete(p.positions, c.Symbol)
	p.mu.Unlock()

	closed := model.ClosedPosition{
		Position:   pos,
		ClosePrice: closePrice,
		ClosedAt:   c.TS,
		Reason:     reason,
	}
	select {
	case p.closeCh <- closed:
	default:
		log.Printf("[paper] close channel full, dropping close for %s", c.Symbol)
	}
}

// OpenPosition returns the open position for symbol, if any.
func (p *PaperBroker) OpenPosition(symbol string) (model.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

// checkExit returns the exit price and reason if the candle triggers SL or TP.
func checkExit(pos model.Position, c model.Candle) (float64, string) {
	if pos.Direction == model.DirectionBuy {
		if pos.StopLoss > 0 && c.Low <= pos.StopLoss {
			return pos.StopLoss, "SL"
		}
		if pos.TakeProfit > 0 && c.High >= pos.TakeProfit {
			return pos.TakeProfit, "TP"
		}
	} else {
		if pos.StopLoss > 0 && c.High >= pos.StopLoss {
			return pos.StopLoss, "SL"
		}
		if pos.TakeProfit > 0 && c.Low <= pos.TakeProfit {
			return pos.TakeProfit, "TP"
		}
	}
	return 0, ""
}
