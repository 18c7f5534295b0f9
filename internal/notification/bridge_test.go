package notification

import (
	"context"
	"errors"
	"testing"

	"smc-enginev1/internal/model"
)

type memNotifier struct {
	alerts []Alert
	err    error
}

func (n *memNotifier) Send(ctx context.Context, a Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

type memSink struct {
	events []model.EngineEvent
	err    error
}

func (s *memSink) RecordEvent(ev model.EngineEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

func TestEventBridge_AlertsTradeEvents(t *testing.T) {
	sink := &memSink{}
	notifier := &memNotifier{}
	b := NewEventBridge(sink, notifier)

	cases := []struct {
		evType    model.EngineEventType
		wantLevel AlertLevel
	}{
		{model.EventOrderPlaced, AlertInfo},
		{model.EventOrderRejected, AlertWarning},
		{model.EventPositionClose, AlertInfo},
		{model.EventLockBlocked, AlertWarning},
	}

	for _, tc := range cases {
		if err := b.RecordEvent(model.EngineEvent{Symbol: "EURUSD", Type: tc.evType, Detail: "x"}); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.evType, err)
		}
	}

	if len(sink.events) != len(cases) {
		t.Fatalf("every event must be journaled, got %d", len(sink.events))
	}
	if len(notifier.alerts) != len(cases) {
		t.Fatalf("every trade event must alert, got %d", len(notifier.alerts))
	}
	for i, tc := range cases {
		if notifier.alerts[i].Level != tc.wantLevel {
			t.Errorf("%s: expected level %s, got %s", tc.evType, tc.wantLevel, notifier.alerts[i].Level)
		}
	}
}

func TestEventBridge_DetectionNoiseNotAlerted(t *testing.T) {
	sink := &memSink{}
	notifier := &memNotifier{}
	b := NewEventBridge(sink, notifier)

	for _, evType := range []model.EngineEventType{
		model.EventTransition,
		model.EventSweep,
		model.EventFVG,
		model.EventMitigation,
		model.EventLockAcquired,
	} {
		b.RecordEvent(model.EngineEvent{Symbol: "EURUSD", Type: evType})
	}

	if len(sink.events) != 5 {
		t.Errorf("detection events must still be journaled, got %d", len(sink.events))
	}
	if len(notifier.alerts) != 0 {
		t.Errorf("detection events must not alert, got %d", len(notifier.alerts))
	}
}

func TestEventBridge_NotifierFailureDoesNotFailWrite(t *testing.T) {
	sink := &memSink{}
	notifier := &memNotifier{err: errors.New("telegram down")}
	b := NewEventBridge(sink, notifier)

	if err := b.RecordEvent(model.EngineEvent{Symbol: "EURUSD", Type: model.EventOrderPlaced}); err != nil {
		t.Errorf("delivery failure must not fail the event write: %v", err)
	}
	if len(sink.events) != 1 {
		t.Error("event must still be journaled")
	}
}

func TestEventBridge_SinkErrorPropagates(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	b := NewEventBridge(sink, &memNotifier{})

	if err := b.RecordEvent(model.EngineEvent{Symbol: "EURUSD", Type: model.EventOrderPlaced}); err == nil {
		t.Error("journal failure must surface to the caller")
	}
}

func TestEventBridge_NilInnerSink(t *testing.T) {
	notifier := &memNotifier{}
	b := NewEventBridge(nil, notifier)

	if err := b.RecordEvent(model.EngineEvent{Symbol: "EURUSD", Type: model.EventOrderPlaced}); err != nil {
		t.Errorf("alert-only bridge must work: %v", err)
	}
	if len(notifier.alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(notifier.alerts))
	}
}

func TestMulti_ContinuesPastFailure(t *testing.T) {
	bad := &memNotifier{err: errors.New("down")}
	good := &memNotifier{}
	m := NewMulti(bad, good)

	if err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "t"}); err != nil {
		t.Errorf("fan-out never fails: %v", err)
	}
	if len(good.alerts) != 1 {
		t.Error("remaining backends must still receive the alert")
	}
}
