// cmd/tickserver — Demo WebSocket tick server.
// Broadcasts simulated forex quotes for testing the engine without gateway
// credentials. Pair it with the wssim ingest.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"EURUSD","bid":1.10023,"ask":1.10031,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address  (default: ":9001")
//	TICK_SYMBOLS      — comma-separated symbols (default: "EURUSD,GBPUSD")
//	TICK_INTERVAL_MS  — broadcast interval milliseconds (default: "100")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// tickMsg mirrors model.Tick for JSON serialisation.
type tickMsg struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	TS     time.Time `json:"ts"`
}

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Mid    float64 // current simulated mid price
	Pip    float64
	Spread float64 // half-spread in price units
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends tick JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generator ──────────────────────────────────────────────────────────

// walkPrice applies a small random walk (±2 pips) to simulate price movement.
func walkPrice(mid, pip float64, rng *rand.Rand) float64 {
	delta := (rng.Float64()*4 - 2) * pip
	next := mid + delta
	if next < pip*100 {
		next = pip * 100
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		for i := range instruments {
			instruments[i].Mid = walkPrice(instruments[i].Mid, instruments[i].Pip, rng)
			msg := tickMsg{
				Symbol: instruments[i].Symbol,
				Bid:    instruments[i].Mid - instruments[i].Spread,
				Ask:    instruments[i].Mid + instruments[i].Spread,
				TS:     time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	// Config
	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "EURUSD,GBPUSD")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 100)

	instruments := parseSymbols(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no symbols configured via TICK_SYMBOLS")
	}
	log.Printf("[tickserver] symbols: %+v", instruments)
	log.Printf("[tickserver] broadcast interval: %dms", intervalMs)

	h := newHub()

	// Start tick generator
	go runGenerator(h, instruments, intervalMs)

	// HTTP routes
	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseSymbols(s string) []instrument {
	// Realistic starting mids and spreads per major pair.
	seeds := map[string]instrument{
		"EURUSD": {Mid: 1.10000, Pip: 0.0001, Spread: 0.00006},
		"GBPUSD": {Mid: 1.27000, Pip: 0.0001, Spread: 0.00009},
		"USDJPY": {Mid: 148.500, Pip: 0.01, Spread: 0.008},
		"AUDUSD": {Mid: 0.65500, Pip: 0.0001, Spread: 0.00008},
		"USDCHF": {Mid: 0.88000, Pip: 0.0001, Spread: 0.00010},
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" {
			continue
		}
		inst, ok := seeds[sym]
		if !ok {
			inst = instrument{Mid: 1.00000, Pip: 0.0001, Spread: 0.00010}
		}
		inst.Symbol = sym
		result = append(result, inst)
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
