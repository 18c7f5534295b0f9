// Package ctrader is a minimal client for a cTrader-compatible REST/WebSocket
// gateway: session login with TOTP two-factor, order placement, and the live
// quote/execution feed. It is broker-surface only — it knows nothing about
// the strategy layer and exposes its own wire types.
package ctrader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Config holds the gateway credentials and endpoints.
type Config struct {
	APIKey     string
	AccountID  string
	TOTPSecret string // empty disables two-factor on login

	RESTURL string // e.g. "https://api.gateway.example.com"
	WSURL   string // e.g. "wss://feed.gateway.example.com/stream"

	Timeout time.Duration // default: 7s
}

// Client is the REST side of the gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu    sync.Mutex
	token string

	// SessionExpiryHook is called on a 401 so the owner can re-login.
	SessionExpiryHook func()
}

// NewClient creates a gateway client. Call Login before placing orders.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	cfg.RESTURL = strings.TrimRight(cfg.RESTURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type loginRequest struct {
	APIKey    string `json:"api_key"`
	AccountID string `json:"account_id"`
	TOTP      string `json:"totp,omitempty"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login authenticates and stores the session token. When a TOTP secret is
// configured, a fresh one-time code is generated for this attempt.
func (c *Client) Login(ctx context.Context) error {
	req := loginRequest{APIKey: c.cfg.APIKey, AccountID: c.cfg.AccountID}
	if c.cfg.TOTPSecret != "" {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("ctrader: generate totp: %w", err)
		}
		req.TOTP = code
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v2/auth", req, &resp); err != nil {
		return fmt.Errorf("ctrader: login: %w", err)
	}
	if resp.Token == "" {
		return fmt.Errorf("ctrader: login returned empty token")
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	log.Printf("[ctrader] session established for account %s", c.cfg.AccountID)
	return nil
}

// Token returns the current session token (used by the feed for its handshake).
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// OrderRequest is a market order submission.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // "BUY" or "SELL"
	Volume     float64 `json:"volume"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	ClientRef  string  `json:"client_ref,omitempty"`
}

// OrderResponse is the gateway's fill confirmation.
type OrderResponse struct {
	OrderID        string  `json:"order_id"`
	ExecutionPrice float64 `json:"execution_price"`
	Status         string  `json:"status"`
	Reason         string  `json:"reason,omitempty"`
}

// PlaceOrder submits a market order and waits for the fill confirmation.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	var resp OrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v2/orders", req, &resp); err != nil {
		return OrderResponse{}, fmt.Errorf("ctrader: place order: %w", err)
	}
	if resp.Status != "FILLED" {
		return resp, fmt.Errorf("ctrader: order %s: %s", resp.Status, resp.Reason)
	}
	return resp, nil
}

// ClosePosition requests a market close of the given position.
func (c *Client) ClosePosition(ctx context.Context, orderID string) error {
	path := "/api/v2/positions/" + orderID + "/close"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("ctrader: close position: %w", err)
	}
	return nil
}

// apiError is the gateway's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RESTURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return fmt.Errorf("unauthorized (token expired?)")
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
