package ctrader

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Quote is one bid/ask update from the feed.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	TS     time.Time `json:"ts"`
}

// ExecutionEvent reports a broker-side position change (SL/TP hit, manual
// close from another terminal).
type ExecutionEvent struct {
	Event      string    `json:"event"` // "POSITION_CLOSED"
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"` // "SL", "TP", "MANUAL"
	OccurredAt time.Time `json:"occurred_at"`
}

// feedMessage is the tagged-union envelope on the wire.
type feedMessage struct {
	Type string          `json:"type"` // "quote" | "execution"
	Data json.RawMessage `json:"data"`
}

// FeedConfig configures the streaming connection.
type FeedConfig struct {
	WSURL   string
	Symbols []string

	// ReconnectDelay is the initial backoff. Defaults to 2s, capped at 30s.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

func (c *FeedConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Feed is the WebSocket side of the gateway. Callbacks run on the read
// goroutine; keep them fast or hand off to a channel.
type Feed struct {
	cfg    FeedConfig
	client *Client // token source for the handshake

	OnQuote     func(q Quote)
	OnExecution func(ev ExecutionEvent)
	OnReconnect func()
}

// NewFeed creates a feed bound to an authenticated client.
func NewFeed(cfg FeedConfig, client *Client) *Feed {
	cfg.defaults()
	return &Feed{cfg: cfg, client: client}
}

type subscribeRequest struct {
	Action  string   `json:"action"` // "subscribe"
	Token   string   `json:"token"`
	Symbols []string `json:"symbols"`
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff on any disconnect.
func (f *Feed) Run(ctx context.Context) error {
	delay := f.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := f.runOnce(ctx)
		if err == nil {
			return nil
		}

		log.Printf("[ctrader-feed] disconnected (%v), reconnecting in %s...", err, delay)
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.cfg.MaxReconnectDelay {
			delay = f.cfg.MaxReconnectDelay
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := subscribeRequest{
		Action:  "subscribe",
		Token:   f.client.Token(),
		Symbols: f.cfg.Symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Printf("[ctrader-feed] connected, subscribed to %v", f.cfg.Symbols)

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var msg feedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[ctrader-feed] parse error: %v", err)
			continue
		}

		switch msg.Type {
		case "quote":
			var q Quote
			if err := json.Unmarshal(msg.Data, &q); err != nil {
				log.Printf("[ctrader-feed] quote parse error: %v", err)
				continue
			}
			if f.OnQuote != nil {
				f.OnQuote(q)
			}
		case "execution":
			var ev ExecutionEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				log.Printf("[ctrader-feed] execution parse error: %v", err)
				continue
			}
			if f.OnExecution != nil {
				f.OnExecution(ev)
			}
		}
	}
}
