// Package portfolio tracks open positions, P&L, and account-level risk.
//
// It maintains a real-time view of all open positions, marks them to market
// from the candle stream, and accumulates realized P&L from broker closes.
// Prices are quote-currency amounts; P&L is price distance × lot size.
package portfolio

import (
	"sync"

	"smc-enginev1/internal/model"
)

// Portfolio tracks all open positions, keyed by order ID.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]model.Position
	lastPrice map[string]float64 // symbol -> latest close
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]model.Position),
		lastPrice: make(map[string]float64),
	}
}

// OnCandle updates the mark price for the candle's symbol. Satisfies the
// engine's MarketListener so the portfolio can ride the candle stream.
func (pf *Portfolio) OnCandle(c model.Candle) {
	pf.mu.Lock()
	pf.lastPrice[c.Symbol] = c.Close
	pf.mu.Unlock()
}

// Open registers a filled position.
func (pf *Portfolio) Open(pos model.Position) {
	pf.mu.Lock()
	pf.positions[pos.OrderID] = pos
	pf.mu.Unlock()
}

// Close removes the position for orderID and returns it.
func (pf *Portfolio) Close(orderID string) (model.Position, bool) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pos, ok := pf.positions[orderID]
	if ok {
		delete(pf.positions, orderID)
	}
	return pos, ok
}

// GetPositions returns a snapshot of all open positions.
func (pf *Portfolio) GetPositions() []model.Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]model.Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, p)
	}
	return result
}

// OpenCount returns the number of open positions.
func (pf *Portfolio) OpenCount() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// TotalUnrealizedPnL marks all open positions against the latest prices.
// Positions for symbols with no mark yet contribute zero.
func (pf *Portfolio) TotalUnrealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		if price, ok := pf.lastPrice[p.Symbol]; ok {
			total += p.UnrealizedPnL(price)
		}
	}
	return total
}
