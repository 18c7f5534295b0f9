// Package ws bridges the cTrader gateway feed into the tick pipeline:
// quotes become model.Tick values, the connection lifecycle (reconnects,
// subscription) stays inside pkg/ctrader.
package ws

import (
	"context"
	"log"
	"time"

	"smc-enginev1/internal/model"
	"smc-enginev1/pkg/ctrader"
)

// Ingest streams gateway quotes into a tick channel.
type Ingest struct {
	feed *ctrader.Feed

	// OnReconnect is forwarded to the feed (optional, for metrics).
	OnReconnect func()
}

// New creates an ingest over an existing feed. The feed's OnQuote callback is
// owned by this ingest from Start on; OnExecution remains the caller's to
// wire (the live broker consumes it).
func New(feed *ctrader.Feed) *Ingest {
	return &Ingest{feed: feed}
}

// Start streams ticks into tickCh. Blocks until ctx is cancelled.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	ing.feed.OnQuote = func(q ctrader.Quote) {
		ts := q.TS
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		tick := model.Tick{
			Symbol: q.Symbol,
			Bid:    q.Bid,
			Ask:    q.Ask,
			TS:     ts,
		}
		select {
		case tickCh <- tick:
		default:
			log.Println("[ws] tickCh full, dropping tick")
		}
	}
	ing.feed.OnReconnect = func() {
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
	}

	return ing.feed.Run(ctx)
}
