package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smc-enginev1/internal/model"
)

// Journal persists trades and structured engine events to SQLite for audit
// and operational visibility. It is the event/system log sink of the core:
// state transitions, sweep/FVG detections and lock activity land here tagged
// with their correlation ID.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id       TEXT NOT NULL,
		correlation_id TEXT,
		symbol         TEXT NOT NULL,
		direction      TEXT NOT NULL,
		size           REAL NOT NULL,
		entry_price    REAL NOT NULL,
		stop_loss      REAL,
		take_profit    REAL,
		close_price    REAL,
		close_reason   TEXT,
		opened_at      DATETIME NOT NULL,
		closed_at      DATETIME,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades(opened_at);

	CREATE TABLE IF NOT EXISTS events (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		ts             DATETIME NOT NULL,
		symbol         TEXT NOT NULL,
		type           TEXT NOT NULL,
		detail         TEXT,
		correlation_id TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_symbol_ts ON events(symbol, ts);
	CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordEntry persists a freshly opened position.
func (j *Journal) RecordEntry(pos model.Position) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (order_id, correlation_id, symbol, direction, size, entry_price, stop_loss, take_profit, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.OrderID,
		pos.CorrelationID,
		pos.Symbol,
		string(pos.Direction),
		pos.Size,
		pos.EntryPrice,
		pos.StopLoss,
		pos.TakeProfit,
		pos.OpenedAt.Format(time.RFC3339),
	)
	return err
}

// RecordClose marks a trade closed with its exit price and reason.
func (j *Journal) RecordClose(closed model.ClosedPosition) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`UPDATE trades SET close_price = ?, close_reason = ?, closed_at = ?
		 WHERE order_id = ? AND closed_at IS NULL`,
		closed.ClosePrice,
		closed.Reason,
		closed.ClosedAt.Format(time.RFC3339),
		closed.Position.OrderID,
	)
	return err
}

// RecordEvent persists one structured engine event. Satisfies model.EventSink.
func (j *Journal) RecordEvent(ev model.EngineEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO events (ts, symbol, type, detail, correlation_id) VALUES (?, ?, ?, ?, ?)`,
		ev.TS.Format(time.RFC3339),
		ev.Symbol,
		string(ev.Type),
		ev.Detail,
		ev.CorrelationID,
	)
	return err
}

// DB exposes the underlying handle for health checks.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
