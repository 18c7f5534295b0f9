package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the institutional engine.
type Metrics struct {
	// Market data pipeline
	TicksTotal   prometheus.Counter
	CandlesTotal *prometheus.CounterVec // labels: tf
	WSReconnects prometheus.Counter
	DroppedTicks prometheus.Counter
	StaleCandles prometheus.Counter

	// Institutional engine
	SweepsDetected   *prometheus.CounterVec // labels: symbol
	FVGsDetected     *prometheus.CounterVec // labels: symbol
	FVGsMitigated    *prometheus.CounterVec // labels: symbol
	FSMTransitions   *prometheus.CounterVec // labels: symbol, from, to
	EntriesTotal     *prometheus.CounterVec // labels: symbol
	OrdersRejected   *prometheus.CounterVec // labels: symbol
	PositionsClosed  *prometheus.CounterVec // labels: symbol, reason
	EvaluationDur    prometheus.Histogram

	// In-flight lock
	LockContention    *prometheus.CounterVec // labels: symbol
	WatchdogEvictions prometheus.Counter

	// Persistence
	SQLiteCommitDur prometheus.Histogram
	FanoutDrops     *prometheus.CounterVec // labels: subscriber

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_ticks_total",
			Help: "Total quote ticks received",
		}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_candles_total",
			Help: "Total closed candles emitted (by timeframe)",
		}, []string{"tf"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_ws_reconnects_total",
			Help: "Total feed reconnection attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_dropped_ticks_total",
			Help: "Ticks dropped (late or channel full)",
		}),
		StaleCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_stale_candles_rejected_total",
			Help: "Candles rejected by the TF builder due to staleness",
		}),

		SweepsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_sweeps_detected_total",
			Help: "Liquidity sweeps detected per symbol",
		}, []string{"symbol"}),
		FVGsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_fvgs_detected_total",
			Help: "Fair value gaps detected per symbol",
		}, []string{"symbol"}),
		FVGsMitigated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_fvgs_mitigated_total",
			Help: "Fair value gap mitigations per symbol",
		}, []string{"symbol"}),
		FSMTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_fsm_transitions_total",
			Help: "State machine transitions per symbol",
		}, []string{"symbol", "from", "to"}),
		EntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_entries_total",
			Help: "Confirmed order entries per symbol",
		}, []string{"symbol"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_orders_rejected_total",
			Help: "Broker order rejections per symbol",
		}, []string{"symbol"}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_positions_closed_total",
			Help: "Positions closed per symbol and reason (SL, TP, MANUAL)",
		}, []string{"symbol", "reason"}),
		EvaluationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smcengine_evaluation_duration_seconds",
			Help:    "Full pipeline evaluation latency per closed candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		LockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_lock_contention_total",
			Help: "In-flight lock acquisitions blocked per symbol",
		}, []string{"symbol"}),
		WatchdogEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_watchdog_evictions_total",
			Help: "In-flight lock records expired by the watchdog",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smcengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smcengine_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smcengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smcengine_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.CandlesTotal,
		m.WSReconnects,
		m.DroppedTicks,
		m.StaleCandles,
		m.SweepsDetected,
		m.FVGsDetected,
		m.FVGsMitigated,
		m.FSMTransitions,
		m.EntriesTotal,
		m.OrdersRejected,
		m.PositionsClosed,
		m.EvaluationDur,
		m.LockContention,
		m.WatchdogEvictions,
		m.SQLiteCommitDur,
		m.FanoutDrops,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
