package execution

import (
	"context"
	"log"
	"sync"
	"time"

	"smc-enginev1/internal/model"
	"smc-enginev1/pkg/ctrader"
)

// LiveBroker adapts the cTrader gateway client to the Broker interface.
// Fills come back synchronously from the REST call; broker-side closes
// (SL/TP hits, manual closes) arrive through the feed's execution events
// and are delivered on Closes.
type LiveBroker struct {
	client *ctrader.Client

	mu        sync.Mutex
	positions map[string]model.Position // keyed by order ID
	closeCh   chan model.ClosedPosition
}

// NewLiveBroker creates a live broker over an authenticated gateway client.
func NewLiveBroker(client *ctrader.Client) *LiveBroker {
	return &LiveBroker{
		client:    client,
		positions: make(map[string]model.Position, 8),
		closeCh:   make(chan model.ClosedPosition, 64),
	}
}

// Closes returns the channel of broker-side position closes.
func (b *LiveBroker) Closes() <-chan model.ClosedPosition {
	return b.closeCh
}

// PlaceOrder submits a market order to the gateway. Rejections are reported
// in the result, never as a panic or a dropped error.
func (b *LiveBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) model.OrderResult {
	resp, err := b.client.PlaceOrder(ctx, ctrader.OrderRequest{
		Symbol:     req.Symbol,
		Side:       string(req.Direction),
		Volume:     req.Size,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		ClientRef:  req.CorrelationID,
	})
	if err != nil {
		return model.OrderResult{Success: false, ErrorMessage: err.Error()}
	}

	b.mu.Lock()
	b.positions[resp.OrderID] = model.Position{
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		Size:          req.Size,
		EntryPrice:    resp.ExecutionPrice,
		StopLoss:      req.StopLoss,
		TakeProfit:    req.TakeProfit,
		OrderID:       resp.OrderID,
		CorrelationID: req.CorrelationID,
		OpenedAt:      time.Now().UTC(),
	}
	b.mu.Unlock()

	log.Printf("[live] %s %s size=%v fill=%v order=%s",
		req.Direction, req.Symbol, req.Size, resp.ExecutionPrice, resp.OrderID)
	return model.OrderResult{Success: true, OrderID: resp.OrderID, ExecutionPrice: resp.ExecutionPrice}
}

// OnExecution handles a feed execution event. Wire this to the gateway
// feed's OnExecution callback.
func (b *LiveBroker) OnExecution(ev ctrader.ExecutionEvent) {
	if ev.Event != "POSITION_CLOSED" {
		return
	}

	b.mu.Lock()
	pos, ok := b.positions[ev.OrderID]
	if ok {
		delete(b.positions, ev.OrderID)
	}
	b.mu.Unlock()

	if !ok {
		// Close for a position we never opened (other terminal, restart gap).
		log.Printf("[live] close event for unknown order %s (%s)", ev.OrderID, ev.Symbol)
		return
	}

	closed := model.ClosedPosition{
		Position:   pos,
		ClosePrice: ev.Price,
		ClosedAt:   ev.OccurredAt,
		Reason:     ev.Reason,
	}
	select {
	case b.closeCh <- closed:
	default:
		log.Printf("[live] close channel full, dropping close for %s", ev.Symbol)
	}
}

// OpenPosition returns the tracked open position for symbol, if any.
func (b *LiveBroker) OpenPosition(symbol string) (model.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pos := range b.positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return model.Position{}, false
}
