// Package execution handles order placement through a broker adapter and
// persists trades and engine events to the SQLite journal.
//
// Order submission is the only operation in the pipeline that may block for
// meaningful wall-clock time; callers hold the in-flight lock for the full
// duration of PlaceOrder.
package execution

import (
	"context"

	"smc-enginev1/internal/model"
)

// Broker is the boundary contract to the broker adapter. PlaceOrder is
// synchronous from the caller's point of view: it returns only on
// confirmation or definitive rejection (or ctx expiry).
type Broker interface {
	// PlaceOrder submits a market order. A failed result is a normal outcome
	// (broker rejection), not an error.
	PlaceOrder(ctx context.Context, req model.OrderRequest) model.OrderResult

	// Closes delivers positions the broker closed (SL/TP hit, manual close).
	Closes() <-chan model.ClosedPosition
}
