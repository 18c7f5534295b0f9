// cmd/smcengine — Institutional forex engine.
// Runs the full pipeline: tick ingest → M1 aggregation → TF resampling →
// fan-out to [evaluation loop, SQLite, Redis], with the HTTP API, Prometheus
// metrics, and hot-reloadable strategy config.
//
// STAGING_MODE=true swaps the broker gateway for the local tickserver and a
// paper broker, so the whole engine runs without credentials.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"smc-enginev1/config"
	"smc-enginev1/internal/api"
	"smc-enginev1/internal/candlestore"
	"smc-enginev1/internal/execution"
	"smc-enginev1/internal/inflight"
	"smc-enginev1/internal/institutional"
	"smc-enginev1/internal/logger"
	"smc-enginev1/internal/marketdata/agg"
	"smc-enginev1/internal/marketdata/bus"
	"smc-enginev1/internal/marketdata/tfbuilder"
	"smc-enginev1/internal/marketdata/ws"
	"smc-enginev1/internal/marketdata/wssim"
	"smc-enginev1/internal/metrics"
	"smc-enginev1/internal/model"
	"smc-enginev1/internal/notification"
	"smc-enginev1/internal/portfolio"
	"smc-enginev1/internal/ringbuf"
	redisstore "smc-enginev1/internal/store/redis"
	sqlitestore "smc-enginev1/internal/store/sqlite"
	"smc-enginev1/internal/strategy"
	"smc-enginev1/pkg/ctrader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[smcengine] starting...")

	// ---- Staging mode check ----
	stagingMode := strings.EqualFold(os.Getenv("STAGING_MODE"), "true")
	if stagingMode {
		log.Println("[smcengine] *** STAGING MODE — tickserver feed + paper broker, no gateway credentials ***")
	}

	// ---- Load config from env ----
	var cfg *config.Config
	if stagingMode {
		cfg = config.LoadStaging()
	} else {
		cfg = config.Load()
	}
	if err := cfg.Strategy.Validate(); err != nil {
		log.Fatalf("[smcengine] invalid strategy config: %v", err)
	}

	slg := logger.Init("smcengine", slog.LevelInfo)

	// ---- Setup pipeline channels ----
	tickCh := make(chan model.Tick, 10000)
	m1Ch := make(chan model.Candle, 5000)
	allCh := make(chan model.Candle, 5000)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(append([]int{model.TFM1}, tfbuilder.DefaultTFs()...))
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite (durable tier) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[smcengine] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
	}
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[smcengine] sqlite reader init failed: %v", err)
	}
	defer sqlReader.Close()
	health.SetSQLiteOK(true)
	log.Println("[smcengine] sqlite ready")

	journal, err := execution.NewJournal(getEnv("JOURNAL_DB_PATH", "data/journal.db"))
	if err != nil {
		log.Fatalf("[smcengine] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Redis (fast tier, behind circuit breaker) ----
	var redisWriter *redisstore.Writer
	var bufWriter *redisstore.BufferedWriter
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[smcengine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
		redisWriter = nil
	} else {
		health.SetRedisConnected(true)
		cb := redisstore.NewCircuitBreaker(5, 15*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
		}
		bufWriter = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 50000)
		bufWriter.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		log.Println("[smcengine] redis writer ready (circuit breaker armed)")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	var redisReader *redisstore.Reader
	if redisWriter != nil {
		redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[smcengine] redis reader init failed: %v (latest-candle API disabled)", err)
			redisReader = nil
		}
	}

	// ---- Hot-reloadable strategy config from Redis ----
	var configStore *redisstore.ConfigStore
	if redisWriter != nil {
		configStore, err = redisstore.NewConfigStore(cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Printf("[smcengine] config store init failed: %v (env config only)", err)
		} else {
			if strat, ok, err := configStore.Load(ctx); err == nil && ok {
				strat.Symbols = cfg.Strategy.Symbols
				if err := strat.Validate(); err == nil {
					cfg.Strategy = strat
					log.Println("[smcengine] strategy config loaded from redis")
				} else {
					log.Printf("[smcengine] ignoring invalid redis strategy config: %v", err)
				}
			}
		}
	}

	// ---- Broker ----
	var broker execution.Broker
	var client *ctrader.Client
	var paperBroker *execution.PaperBroker
	if stagingMode {
		paperBroker = execution.NewPaperBroker(0.2, cfg.Instruments)
		broker = paperBroker
	} else {
		client = ctrader.NewClient(ctrader.Config{
			APIKey:     cfg.BrokerAPIKey,
			AccountID:  cfg.BrokerAccountID,
			TOTPSecret: cfg.BrokerTOTPSecret,
			RESTURL:    cfg.BrokerRESTURL,
			WSURL:      cfg.BrokerWSURL,
		})
		if err := client.Login(ctx); err != nil {
			log.Fatalf("[smcengine] gateway login failed: %v", err)
		}
		client.SessionExpiryHook = func() {
			log.Println("[smcengine] session expired, re-authenticating...")
			lctx, lcancel := context.WithTimeout(ctx, 15*time.Second)
			defer lcancel()
			if err := client.Login(lctx); err != nil {
				log.Printf("[smcengine] re-login failed: %v", err)
			}
		}
		broker = execution.NewLiveBroker(client)
	}

	// ---- Account tracking + notifications ----
	pf := portfolio.New()
	pnl := portfolio.NewPnLTracker()
	accountant := portfolio.NewAccountant(pf, pnl, nil, journal)
	accountant.OnClose = func(closed model.ClosedPosition, realized float64) {
		prom.PositionsClosed.WithLabelValues(closed.Position.Symbol, closed.Reason).Inc()
	}

	notifier := buildNotifier()
	sink := notification.NewEventBridge(journal, notifier)

	// ---- In-flight lock table ----
	locks := inflight.NewTable(time.Duration(cfg.Strategy.InFlightTimeoutSec)*time.Second, slg)
	locks.OnEvict = func(rec inflight.Record) {
		prom.WatchdogEvictions.Inc()
	}

	// ---- Institutional manager ----
	store := candlestore.New(4096)
	manager := institutional.New(cfg.Strategy, cfg.Instruments, store, locks, broker, sink, slg)
	manager.SetTradeLog(accountant)
	manager.SetHooks(institutional.Hooks{
		OnTransition: func(sym string, from, to institutional.State) {
			prom.FSMTransitions.WithLabelValues(sym, string(from), string(to)).Inc()
		},
		OnSweep:      func(sym string) { prom.SweepsDetected.WithLabelValues(sym).Inc() },
		OnFVG:        func(sym string) { prom.FVGsDetected.WithLabelValues(sym).Inc() },
		OnMitigation: func(sym string) { prom.FVGsMitigated.WithLabelValues(sym).Inc() },
		OnEntry:      func(sym string) { prom.EntriesTotal.WithLabelValues(sym).Inc() },
		OnLockBlocked: func(sym string) {
			prom.LockContention.WithLabelValues(sym).Inc()
		},
	})

	registry := institutional.NewRegistry()
	registry.Register(getEnv("USER_ID", "local"), getEnv("BOT_ID", "smc"), manager)

	// ---- Bootstrap session state from SQLite history ----
	bootstrapFrom := time.Now().AddDate(0, 0, -7).Unix()
	for sym := range cfg.Instruments {
		var history []model.Candle
		for _, tf := range []int{model.TFM5, model.TFM15} {
			candles, err := sqlReader.ReadCandles(sym, tf, bootstrapFrom)
			if err != nil {
				log.Printf("[smcengine] bootstrap read failed for %s tf=%d: %v", sym, tf, err)
				continue
			}
			history = append(history, candles...)
		}
		if len(history) > 0 {
			manager.Bootstrap(sym, history, time.Now().UTC())
			log.Printf("[smcengine] bootstrapped %s from %d historical candles", sym, len(history))
		}
	}

	// ---- Evaluation loop ----
	var snapshots model.SnapshotStore
	if redisWriter != nil {
		snapshots = redisWriter
	}
	engine := strategy.NewEngine(locks, broker, snapshots, slg)
	engine.OnStep = func(d time.Duration) {
		prom.EvaluationDur.Observe(d.Seconds())
	}
	for _, m := range registry.All() {
		engine.Register(m)
	}
	engine.AddListener(pf)
	if paperBroker != nil {
		engine.AddListener(paperBroker)
	}

	// ---- Config hot reload ----
	if configStore != nil {
		go func() {
			err := configStore.Watch(ctx, func(strat config.Strategy) {
				strat.Symbols = cfg.Strategy.Symbols
				for _, m := range registry.All() {
					m.UpdateConfig(strat)
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("[smcengine] config watch stopped: %v", err)
			}
		}()
	}

	// ---- Fan-out: evaluation loop + SQLite + Redis ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDrops.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}
	engineCh := fanout.Subscribe()
	sqliteCh := fanout.Subscribe()
	var redisCh <-chan model.Candle
	if bufWriter != nil {
		redisCh = fanout.Subscribe()
	}
	go fanout.Run(ctx, allCh)

	go engine.Run(ctx, engineCh)
	go sqlWriter.Run(ctx, sqliteCh)
	if bufWriter != nil {
		go bufWriter.Run(ctx, redisCh)
	}

	// ---- TF builder: M1 → M5/M15/H1, forwarding M1 alongside ----
	tfBuilder := tfbuilder.New(tfbuilder.DefaultTFs())
	tfBuilder.OnTFCandle = func(c model.Candle) {
		prom.CandlesTotal.WithLabelValues(strconv.Itoa(c.TF)).Inc()
	}
	tfBuilder.OnStaleCandle = func() {
		prom.StaleCandles.Inc()
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-m1Ch:
				if !ok {
					return
				}
				prom.CandlesTotal.WithLabelValues(strconv.Itoa(model.TFM1)).Inc()
				tfBuilder.Process(c, allCh)
				select {
				case allCh <- c:
				default:
					log.Println("[smcengine] candle bus full, dropping M1 candle")
				}
			}
		}
	}()

	// ---- Aggregator (M1 OHLC builder) ----
	aggregator := agg.New()
	aggregator.OnDroppedTick = func() {
		prom.DroppedTicks.Inc()
	}
	go aggregator.Run(ctx, tickCh, m1Ch)

	// ---- Ring buffer between the feed callback and the aggregator ----
	// The feed's read loop must never block on downstream backpressure.
	ring := ringbuf.New(16384)
	rawTickCh := make(chan model.Tick, 1024)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-rawTickCh:
				if !ok {
					return
				}
				if !ring.Push(t) {
					prom.DroppedTicks.Inc()
				}
			}
		}
	}()
	go func() {
		for {
			t, ok := ring.Pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}
			prom.TicksTotal.Inc()
			health.SetLastTickTime(time.Now())
			select {
			case tickCh <- t:
			default:
				prom.DroppedTicks.Inc()
			}
		}
	}()
	log.Println("[smcengine] pipeline ready")

	// ---- Tick source: tickserver (staging) or gateway feed (production) ----
	if stagingMode {
		simWSURL := getEnv("SIM_WS_URL", "ws://localhost:9001/ws")
		log.Printf("[smcengine] staging tick source: %s", simWSURL)

		ingest, err := wssim.New(wssim.Config{URL: simWSURL})
		if err != nil {
			log.Fatalf("[smcengine] wssim init failed: %v", err)
		}
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
		}
		health.SetFeedConnected(true)

		go func() {
			if err := ingest.Start(ctx, rawTickCh); err != nil {
				log.Printf("[smcengine] wssim error: %v", err)
				health.SetFeedConnected(false)
			}
		}()
	} else {
		symbols := make([]string, 0, len(cfg.Instruments))
		for sym := range cfg.Instruments {
			symbols = append(symbols, sym)
		}
		feed := ctrader.NewFeed(ctrader.FeedConfig{
			WSURL:   cfg.BrokerWSURL,
			Symbols: symbols,
		}, client)
		if lb, ok := broker.(*execution.LiveBroker); ok {
			feed.OnExecution = lb.OnExecution
		}

		ingest := ws.New(feed)
		ingest.OnReconnect = func() {
			prom.WSReconnects.Inc()
			health.SetFeedConnected(false)
		}
		health.SetFeedConnected(true)

		go func() {
			if err := ingest.Start(ctx, rawTickCh); err != nil {
				log.Printf("[smcengine] feed error: %v", err)
				health.SetFeedConnected(false)
			}
		}()
	}

	// ---- HTTP API ----
	apiSrv := &api.Server{
		Manager:     manager,
		Locks:       locks,
		ConfigStore: configStore,
		Reader:      redisReader,
		Candles:     sqlReader,
	}
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: apiSrv.NewRouter()}
	go func() {
		log.Printf("[smcengine] API listening on %s", cfg.APIAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[smcengine] API server error: %v", err)
		}
	}()

	mode := "production"
	if stagingMode {
		mode = "staging"
	}
	log.Printf("[smcengine] ✅ engine running (%s): %d symbols, sessions %s",
		mode, len(cfg.Instruments), "ASIA/LONDON/NY (UTC)")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[smcengine] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if bufWriter != nil {
		bufWriter.Close()
	} else if redisWriter != nil {
		redisWriter.Close()
	}
	if redisReader != nil {
		redisReader.Close()
	}
	if configStore != nil {
		configStore.Close()
	}

	log.Println("[smcengine] shutdown complete.")
}

// buildNotifier assembles alert backends from the environment. With nothing
// configured, alerts go to the process log.
func buildNotifier() notification.Notifier {
	var backends []notification.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
			backends = append(backends, notification.NewTelegramNotifier(token, chatID))
			log.Println("[smcengine] telegram alerts enabled")
		}
	}
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		backends = append(backends, notification.NewWebhookNotifier(url))
		log.Println("[smcengine] webhook alerts enabled")
	}
	if len(backends) == 0 {
		return notification.NewLogNotifier()
	}
	return notification.NewMulti(backends...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
