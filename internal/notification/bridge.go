package notification

import (
	"context"
	"fmt"
	"time"

	"smc-enginev1/internal/model"
)

// EventBridge is an event sink that forwards trade-relevant engine events to
// a Notifier while delegating persistence to an inner sink (the journal).
// Detection noise (sweeps, FVGs, lock chatter) is journaled but not alerted.
type EventBridge struct {
	inner    model.EventSink
	notifier Notifier

	// SendTimeout bounds each delivery attempt. Defaults to 10s.
	SendTimeout time.Duration
}

// NewEventBridge wraps inner so that order and position events also reach the
// notifier. inner may be nil when only alerts are wanted.
func NewEventBridge(inner model.EventSink, notifier Notifier) *EventBridge {
	return &EventBridge{inner: inner, notifier: notifier, SendTimeout: 10 * time.Second}
}

// RecordEvent implements model.EventSink.
func (b *EventBridge) RecordEvent(ev model.EngineEvent) error {
	var innerErr error
	if b.inner != nil {
		innerErr = b.inner.RecordEvent(ev)
	}

	alert, ok := alertFor(ev)
	if ok {
		ctx, cancel := context.WithTimeout(context.Background(), b.SendTimeout)
		defer cancel()
		// Alert delivery failure never fails the event write.
		_ = b.notifier.Send(ctx, alert)
	}

	return innerErr
}

func alertFor(ev model.EngineEvent) (Alert, bool) {
	switch ev.Type {
	case model.EventOrderPlaced:
		return Alert{
			Level:   AlertInfo,
			Title:   fmt.Sprintf("Order placed: %s", ev.Symbol),
			Message: ev.Detail,
		}, true
	case model.EventOrderRejected:
		return Alert{
			Level:   AlertWarning,
			Title:   fmt.Sprintf("Order rejected: %s", ev.Symbol),
			Message: ev.Detail,
		}, true
	case model.EventPositionClose:
		return Alert{
			Level:   AlertInfo,
			Title:   fmt.Sprintf("Position closed: %s", ev.Symbol),
			Message: ev.Detail,
		}, true
	case model.EventLockBlocked:
		return Alert{
			Level:   AlertWarning,
			Title:   fmt.Sprintf("Order blocked by in-flight lock: %s", ev.Symbol),
			Message: ev.Detail,
		}, true
	default:
		return Alert{}, false
	}
}
