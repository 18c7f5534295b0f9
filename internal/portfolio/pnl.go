package portfolio

import (
	"sync"

	"smc-enginev1/internal/model"
)

// PnLTracker accumulates realized P&L from closed positions.
type PnLTracker struct {
	mu     sync.RWMutex
	closed []model.ClosedPosition

	realizedPnL float64
	wins        int
	losses      int
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		closed: make([]model.ClosedPosition, 0, 64),
	}
}

// RecordClose records a broker close and returns the realized P&L of that
// trade in price terms (price distance × lot size).
func (p *PnLTracker) RecordClose(cp model.ClosedPosition) float64 {
	pnl := cp.Position.UnrealizedPnL(cp.ClosePrice)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = append(p.closed, cp)
	p.realizedPnL += pnl
	if pnl >= 0 {
		p.wins++
	} else {
		p.losses++
	}
	return pnl
}

// GetRealizedPnL returns total realized P&L.
func (p *PnLTracker) GetRealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// GetClosed returns a snapshot of all closed positions.
func (p *PnLTracker) GetClosed() []model.ClosedPosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.ClosedPosition, len(p.closed))
	copy(cp, p.closed)
	return cp
}

// PnLSummary is a point-in-time P&L report.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	ClosedTrades  int     `json:"closed_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	OpenPositions int     `json:"open_positions"`
}

// GetSummary combines realized results with the portfolio's open marks.
func (p *PnLTracker) GetSummary(pf *Portfolio) PnLSummary {
	unrealized := pf.TotalUnrealizedPnL()
	open := pf.OpenCount()

	p.mu.RLock()
	defer p.mu.RUnlock()

	return PnLSummary{
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		ClosedTrades:  len(p.closed),
		Wins:          p.wins,
		Losses:        p.losses,
		OpenPositions: open,
	}
}
