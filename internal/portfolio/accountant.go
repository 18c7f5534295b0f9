package portfolio

import (
	"smc-enginev1/internal/model"
)

// TradeJournal is the durable trade store the accountant writes through to.
type TradeJournal interface {
	RecordEntry(pos model.Position) error
	RecordClose(closed model.ClosedPosition) error
}

// Accountant keeps the portfolio, P&L tracker, and risk manager in sync with
// the trade stream. It satisfies the manager's trade log so entries and closes
// flow through account tracking and the journal in one synchronous step.
type Accountant struct {
	pf      *Portfolio
	pnl     *PnLTracker
	rm      *RiskManager
	journal TradeJournal // may be nil

	// OnClose is called after each close with its realized P&L (optional).
	OnClose func(closed model.ClosedPosition, realized float64)
}

// NewAccountant wires account tracking around a trade journal.
func NewAccountant(pf *Portfolio, pnl *PnLTracker, rm *RiskManager, journal TradeJournal) *Accountant {
	return &Accountant{pf: pf, pnl: pnl, rm: rm, journal: journal}
}

// RecordEntry registers a fill with the portfolio and the journal.
func (a *Accountant) RecordEntry(pos model.Position) error {
	a.pf.Open(pos)
	if a.journal == nil {
		return nil
	}
	return a.journal.RecordEntry(pos)
}

// RecordClose settles a close: realized P&L, equity tracking, journal.
func (a *Accountant) RecordClose(closed model.ClosedPosition) error {
	a.pf.Close(closed.Position.OrderID)
	realized := a.pnl.RecordClose(closed)
	if a.rm != nil {
		a.rm.RecordPnL(realized)
	}
	if a.OnClose != nil {
		a.OnClose(closed, realized)
	}
	if a.journal == nil {
		return nil
	}
	return a.journal.RecordClose(closed)
}

// Summary reports the account state.
func (a *Accountant) Summary() PnLSummary {
	return a.pnl.GetSummary(a.pf)
}
