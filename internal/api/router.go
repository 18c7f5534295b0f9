// Package api exposes the engine's operational HTTP surface: FSM and session
// status, in-flight locks, strategy config, and candle reads. Read-mostly;
// the only mutation is the strategy config update, which round-trips through
// the Redis config store so every process sees the same record.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"smc-enginev1/config"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/institutional"
	"smc-enginev1/internal/model"
	redisstore "smc-enginev1/internal/store/redis"
)

// Server wires the status endpoints to their data sources. Any field may be
// nil; the matching endpoints then return 404.
type Server struct {
	Manager     *institutional.Manager
	Locks       *inflight.Table
	ConfigStore *redisstore.ConfigStore
	Reader      *redisstore.Reader
	Candles     model.CandleReader
}

// NewRouter sets up the HTTP routes.
func (s *Server) NewRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.Manager != nil {
		mux.HandleFunc("/api/v1/fsm", s.handleFSM)
		mux.HandleFunc("/api/v1/session", s.handleSession)
		mux.HandleFunc("/api/v1/debug", s.handleDebug)
	}
	if s.Locks != nil {
		mux.HandleFunc("/api/v1/locks", s.handleLocks)
	}
	if s.ConfigStore != nil {
		mux.HandleFunc("/api/v1/config", s.handleConfig)
	}
	if s.Candles != nil {
		mux.HandleFunc("/api/v1/candles", s.handleCandles)
	}
	if s.Reader != nil {
		mux.HandleFunc("/api/v1/candles/latest", s.handleLatestCandle)
		mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	}

	return mux
}

// handleFSM returns the full per-symbol status snapshot.
func (s *Server) handleFSM(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Manager.Status())
}

// handleSession returns just the session and context view per symbol.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	type sessionView struct {
		Symbol  string              `json:"symbol"`
		Session model.SessionType   `json:"session"`
		Context model.ContextResult `json:"context"`
	}
	statuses := s.Manager.Status()
	out := make([]sessionView, len(statuses))
	for i, st := range statuses {
		out[i] = sessionView{Symbol: st.Symbol, Session: st.Session, Context: st.Context}
	}
	writeJSON(w, out)
}

// handleDebug returns the one-line operator summary.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.Manager.DebugInfo() + "\n"))
}

// handleLocks returns the live in-flight lock records.
func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Locks.Snapshot())
}

// handleConfig reads (GET) or replaces (PUT) the strategy record.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		strat, found, err := s.ConfigStore.Load(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			strat = config.LoadStrategy()
		}
		writeJSON(w, strat)

	case http.MethodPut, http.MethodPost:
		var strat config.Strategy
		if err := json.NewDecoder(r.Body).Decode(&strat); err != nil {
			http.Error(w, "invalid strategy JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.ConfigStore.Save(ctx, strat); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("[api] strategy config updated via %s", r.RemoteAddr)
		writeJSON(w, map[string]string{"status": "saved"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCandles serves historical candles:
// GET /api/v1/candles?symbol=EURUSD&tf=300&after=unixts
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	tf, err := strconv.Atoi(r.URL.Query().Get("tf"))
	if err != nil || tf <= 0 {
		tf = model.TFM5
	}
	var after int64
	if v := r.URL.Query().Get("after"); v != "" {
		after, _ = strconv.ParseInt(v, 10, 64)
	}

	candles, err := s.Candles.ReadCandles(symbol, tf, after)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, candles)
}

// handleLatestCandle serves the most recent closed candle from Redis:
// GET /api/v1/candles/latest?symbol=EURUSD&tf=300
func (s *Server) handleLatestCandle(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}
	tf, err := strconv.Atoi(r.URL.Query().Get("tf"))
	if err != nil || tf <= 0 {
		tf = model.TFM5
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	c, ok, err := s.Reader.LatestCandle(ctx, symbol, tf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "no candle stored", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

// handleSnapshot serves the last published engine status snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	data, err := s.Reader.ReadLatestSnapshotJSON(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if data == nil {
		http.Error(w, "no snapshot published yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}
