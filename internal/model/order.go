package model

import "time"

// Direction is the trade side of an order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderRequest is the boundary contract to the broker adapter.
type OrderRequest struct {
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Size          float64   `json:"size"` // lots
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	Reason        string    `json:"reason,omitempty"`
}

// OrderResult is the broker's answer to an order submission.
type OrderResult struct {
	Success        bool    `json:"success"`
	OrderID        string  `json:"order_id,omitempty"`
	ExecutionPrice float64 `json:"execution_price,omitempty"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Position represents an open trade tracked by the execution layer.
type Position struct {
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	OrderID       string    `json:"order_id"`
	CorrelationID string    `json:"correlation_id"`
	OpenedAt      time.Time `json:"opened_at"`
}

// UnrealizedPnL computes open profit in price terms (positive = in profit).
func (p *Position) UnrealizedPnL(lastPrice float64) float64 {
	if p.Direction == DirectionBuy {
		return (lastPrice - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - lastPrice) * p.Size
}
