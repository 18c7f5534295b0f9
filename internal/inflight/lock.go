// Package inflight guards order submission with a per-symbol mutual-exclusion
// record: at any instant at most one live record may exist per symbol, so two
// evaluation loops trading the same symbol can never submit concurrently.
// A watchdog expires records whose owning call never returned — the only
// unlock path for a stuck submission.
package inflight

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"smc-enginev1/internal/logger"
)

// DefaultTimeout is how long a record may live before the watchdog evicts it.
const DefaultTimeout = 30 * time.Second

// Record is one live in-flight order marker.
type Record struct {
	Symbol        string    `json:"symbol"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
	Status        string    `json:"status"`
}

// AcquireResult reports the outcome of a lock attempt. Contention is a normal
// outcome, not an error: the caller simply skips this cycle's entry.
type AcquireResult struct {
	Acquired      bool
	CorrelationID string
	Reason        string
}

// Table is the process-wide in-flight lock map, shared by every evaluation
// loop that places orders. All mutation happens inside one critical section —
// check-and-set is atomic, never check-then-set with a gap.
type Table struct {
	mu      sync.Mutex
	records map[string]*Record
	timeout time.Duration
	log     *slog.Logger

	// now is injectable for tests.
	now func() time.Time

	// OnEvict is called for each watchdog-expired record (optional).
	OnEvict func(rec Record)
}

// NewTable creates a lock table with the given record timeout.
// timeout <= 0 falls back to DefaultTimeout.
func NewTable(timeout time.Duration, log *slog.Logger) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Table{
		records: make(map[string]*Record, 16),
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// TryAcquire attempts to create the in-flight record for symbol. Succeeds iff
// no live (non-expired) record exists; of N simultaneous attempts for one
// symbol exactly one acquires. An expired record found in place is evicted
// inline so a dead lock never blocks a fresh acquisition.
func (t *Table) TryAcquire(symbol string) AcquireResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if rec, ok := t.records[symbol]; ok {
		if now.Sub(rec.CreatedAt) <= t.timeout {
			return AcquireResult{
				Acquired: false,
				Reason:   fmt.Sprintf("order already in flight for %s (correlation %s)", symbol, rec.CorrelationID),
			}
		}
		t.evictLocked(symbol, rec, now)
	}

	rec := &Record{
		Symbol:        symbol,
		CorrelationID: uuid.NewString(),
		CreatedAt:     now,
		Status:        "PENDING",
	}
	t.records[symbol] = rec
	return AcquireResult{Acquired: true, CorrelationID: rec.CorrelationID}
}

// Clear removes the record for symbol. Idempotent: clearing an absent record
// is a no-op, not an error.
func (t *Table) Clear(symbol, reason string) {
	t.mu.Lock()
	rec, ok := t.records[symbol]
	if ok {
		delete(t.records, symbol)
	}
	t.mu.Unlock()

	if ok {
		t.log.Debug("in-flight lock cleared",
			slog.String("symbol", symbol),
			slog.String(logger.CorrelationKey, rec.CorrelationID),
			slog.String("reason", reason))
	}
}

// RunWatchdog evicts every record older than the timeout and returns how many
// were cleared. Invoked once per evaluation cycle; this is the sole recovery
// path for a submission that never confirmed.
func (t *Table) RunWatchdog(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared := 0
	for symbol, rec := range t.records {
		if now.Sub(rec.CreatedAt) > t.timeout {
			t.evictLocked(symbol, rec, now)
			cleared++
		}
	}
	return cleared
}

// evictLocked removes an expired record. Caller holds t.mu.
func (t *Table) evictLocked(symbol string, rec *Record, now time.Time) {
	delete(t.records, symbol)
	// Warning level: an expired lock means a prior submission never confirmed.
	t.log.Warn("in-flight lock expired, evicting",
		slog.String("symbol", symbol),
		slog.String(logger.CorrelationKey, rec.CorrelationID),
		slog.Duration("age", now.Sub(rec.CreatedAt)))
	if t.OnEvict != nil {
		t.OnEvict(*rec)
	}
}

// ActiveCount returns the number of live records for symbol (0 or 1).
func (t *Table) ActiveCount(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[symbol]; ok {
		return 1
	}
	return 0
}

// Snapshot returns a copy of all live records, for status endpoints.
func (t *Table) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	return out
}

// Timeout returns the record timeout, used as the order submission deadline.
func (t *Table) Timeout() time.Duration {
	return t.timeout
}

// SetClock overrides the time source. Test hook.
func (t *Table) SetClock(now func() time.Time) {
	t.now = now
}
