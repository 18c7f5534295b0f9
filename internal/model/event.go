package model

import "time"

// EngineEventType enumerates the structured events the core emits to the
// persistence sink for traceability.
type EngineEventType string

const (
	EventTransition    EngineEventType = "FSM_TRANSITION"
	EventSweep         EngineEventType = "SWEEP_DETECTED"
	EventFVG           EngineEventType = "FVG_DETECTED"
	EventMitigation    EngineEventType = "FVG_MITIGATED"
	EventLockAcquired  EngineEventType = "LOCK_ACQUIRED"
	EventLockBlocked   EngineEventType = "LOCK_BLOCKED"
	EventLockReleased  EngineEventType = "LOCK_RELEASED"
	EventOrderPlaced   EngineEventType = "ORDER_PLACED"
	EventOrderRejected EngineEventType = "ORDER_REJECTED"
	EventPositionClose EngineEventType = "POSITION_CLOSED"
)

// EngineEvent is one structured log event tagged with a correlation ID.
type EngineEvent struct {
	TS            time.Time       `json:"ts"`
	Symbol        string          `json:"symbol"`
	Type          EngineEventType `json:"type"`
	Detail        string          `json:"detail"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// ClosedPosition reports a position the broker closed (SL, TP or manual).
type ClosedPosition struct {
	Position   Position  `json:"position"`
	ClosePrice float64   `json:"close_price"`
	ClosedAt   time.Time `json:"closed_at"`
	Reason     string    `json:"reason"` // "SL", "TP", "MANUAL"
}
