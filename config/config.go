// Package config loads all application configuration from environment
// variables into one validated, immutable record. Defaults are resolved here
// once; the engines never re-derive defaults at evaluation time.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"smc-enginev1/internal/model"
	"smc-enginev1/internal/session"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker credentials (cTrader-compatible REST/WS gateway)
	BrokerAPIKey     string
	BrokerAccountID  string
	BrokerTOTPSecret string
	BrokerRESTURL    string
	BrokerWSURL      string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	APIAddr       string

	// Strategy parameters (hot-reloadable as one record)
	Strategy Strategy

	// Instruments keyed by symbol, parsed from SYMBOLS.
	Instruments map[string]model.Instrument
}

// Strategy is the flat record of institutional-engine tunables. It is built
// once at load, validated, and passed down immutably; hot reload swaps the
// whole record without touching in-flight FSM state.
type Strategy struct {
	InstitutionalEnabled bool     `json:"institutional_enabled"`
	Symbols              []string `json:"symbols"`

	Session session.Boundaries `json:"session"`

	SweepBufferPips    float64 `json:"sweep_buffer_pips"`
	MinGapPips         float64 `json:"min_gap_pips"`
	IncludeSwingPoints bool    `json:"include_swing_points"`
	SwingWing          int     `json:"swing_wing"` // fractal wing size (candles each side)
	MaxSwingPools      int     `json:"max_swing_pools"`

	WaitFVGMinutes        int `json:"wait_fvg_minutes"`
	WaitMitigationMinutes int `json:"wait_mitigation_minutes"`
	WaitEntryMinutes      int `json:"wait_entry_minutes"`
	CooldownMinutes       int `json:"cooldown_minutes"`
	MaxTradesPerSession   int `json:"max_trades_per_session"`

	OrderSize      float64 `json:"order_size"` // lots
	StopBufferPips float64 `json:"stop_buffer_pips"`
	RiskReward     float64 `json:"risk_reward"`

	InFlightTimeoutSec int `json:"in_flight_timeout_sec"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		BrokerAPIKey:     mustEnv("BROKER_API_KEY"),
		BrokerAccountID:  mustEnv("BROKER_ACCOUNT_ID"),
		BrokerTOTPSecret: getEnv("BROKER_TOTP_SECRET", ""),
		BrokerRESTURL:    getEnv("BROKER_REST_URL", "https://api.icmarkets-gw.example.com"),
		BrokerWSURL:      getEnv("BROKER_WS_URL", "wss://feed.icmarkets-gw.example.com/stream"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/smc.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8085"),

		Strategy: LoadStrategy(),
	}
	cfg.Instruments = parseInstruments(getEnv("SYMBOLS", "EURUSD:0.0001,GBPUSD:0.0001,XAUUSD:0.1"))

	symbols := make([]string, 0, len(cfg.Instruments))
	for sym := range cfg.Instruments {
		symbols = append(symbols, sym)
	}
	cfg.Strategy.Symbols = symbols

	return cfg
}

// LoadStaging is Load without the broker credential requirement, for runs
// against the simulated tick server.
func LoadStaging() *Config {
	cfg := &Config{
		BrokerRESTURL: getEnv("BROKER_REST_URL", ""),
		BrokerWSURL:   getEnv("BROKER_WS_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/smc.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		APIAddr:       getEnv("API_ADDR", ":8085"),

		Strategy: LoadStrategy(),
	}
	cfg.Instruments = parseInstruments(getEnv("SYMBOLS", "EURUSD:0.0001,GBPUSD:0.0001,XAUUSD:0.1"))

	symbols := make([]string, 0, len(cfg.Instruments))
	for sym := range cfg.Instruments {
		symbols = append(symbols, sym)
	}
	cfg.Strategy.Symbols = symbols

	return cfg
}

// LoadStrategy reads only the strategy record from the environment. Also used
// as the default when no hot-reloaded record exists in Redis yet.
func LoadStrategy() Strategy {
	return Strategy{
		InstitutionalEnabled: getEnv("INSTITUTIONAL_ENABLED", "true") == "true",

		Session: session.Boundaries{
			AsiaStart:   envInt("SESSION_ASIA_START_MIN", 23*60),
			AsiaEnd:     envInt("SESSION_ASIA_END_MIN", 7*60),
			LondonStart: envInt("SESSION_LONDON_START_MIN", 7*60),
			LondonEnd:   envInt("SESSION_LONDON_END_MIN", 12*60),
			NYStart:     envInt("SESSION_NY_START_MIN", 12*60),
			NYEnd:       envInt("SESSION_NY_END_MIN", 21*60),
		},

		SweepBufferPips:    envFloat("SWEEP_BUFFER_PIPS", 0.5),
		MinGapPips:         envFloat("MIN_GAP_PIPS", 2.0),
		IncludeSwingPoints: getEnv("INCLUDE_SWING_POINTS", "true") == "true",
		SwingWing:          envInt("SWING_WING", 2),
		MaxSwingPools:      envInt("MAX_SWING_POOLS", 3),

		WaitFVGMinutes:        envInt("INST_WAIT_FVG_MIN", 30),
		WaitMitigationMinutes: envInt("INST_WAIT_MITIGATION_MIN", 60),
		WaitEntryMinutes:      envInt("INST_WAIT_ENTRY_MIN", 30),
		CooldownMinutes:       envInt("INST_COOLDOWN_MIN", 15),
		MaxTradesPerSession:   envInt("MAX_TRADES_PER_SESSION", 2),

		OrderSize:      envFloat("ORDER_SIZE_LOTS", 0.1),
		StopBufferPips: envFloat("STOP_BUFFER_PIPS", 2.0),
		RiskReward:     envFloat("RISK_REWARD", 2.0),

		InFlightTimeoutSec: envInt("IN_FLIGHT_TIMEOUT_SEC", 30),
	}
}

// Validate rejects contradictory configuration before the engine starts.
// Configuration errors are the one failure class that is not self-healing.
func (s *Strategy) Validate() error {
	if err := s.Session.Validate(); err != nil {
		return fmt.Errorf("session boundaries: %w", err)
	}
	for name, v := range map[string]int{
		"INST_WAIT_FVG_MIN":        s.WaitFVGMinutes,
		"INST_WAIT_MITIGATION_MIN": s.WaitMitigationMinutes,
		"INST_WAIT_ENTRY_MIN":      s.WaitEntryMinutes,
		"INST_COOLDOWN_MIN":        s.CooldownMinutes,
		"IN_FLIGHT_TIMEOUT_SEC":    s.InFlightTimeoutSec,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if s.MaxTradesPerSession <= 0 {
		return fmt.Errorf("MAX_TRADES_PER_SESSION must be positive, got %d", s.MaxTradesPerSession)
	}
	if s.SweepBufferPips < 0 || s.MinGapPips < 0 || s.StopBufferPips < 0 {
		return fmt.Errorf("pip thresholds must be non-negative")
	}
	if s.OrderSize <= 0 {
		return fmt.Errorf("ORDER_SIZE_LOTS must be positive, got %v", s.OrderSize)
	}
	if s.RiskReward <= 0 {
		return fmt.Errorf("RISK_REWARD must be positive, got %v", s.RiskReward)
	}
	if s.SwingWing < 1 {
		return fmt.Errorf("SWING_WING must be >= 1, got %d", s.SwingWing)
	}
	return nil
}

// parseInstruments parses "SYMBOL:pipsize,..." into instrument records.
func parseInstruments(s string) map[string]model.Instrument {
	out := make(map[string]model.Instrument)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		sym := strings.ToUpper(strings.TrimSpace(fields[0]))
		pip := 0.0001
		if len(fields) == 2 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err == nil && v > 0 {
				pip = v
			} else {
				log.Printf("[config] skipping invalid pip size for %s: %q", sym, fields[1])
			}
		}
		out[sym] = model.Instrument{Symbol: sym, PipSize: pip, Digits: 5, LotSize: 100_000}
	}
	return out
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
