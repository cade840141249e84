package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/eduadocs/backend/internal/domain"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewWizardEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(WizardEventStepChanged, func(ctx context.Context, event WizardEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(WizardEventStepChanged, func(ctx context.Context, event WizardEvent) error {
		calledB = true
		return nil
	})

	if err := bus.Publish(context.Background(), WizardEventStepChanged, WizardEvent{Type: WizardEventStepChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewWizardEventBus()
	called := false
	unsubscribe := bus.Subscribe(WizardEventStepChanged, func(ctx context.Context, event WizardEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), WizardEventStepChanged, WizardEvent{Type: WizardEventStepChanged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewWizardEventBus()
	bus.Subscribe(WizardEventStepChanged, func(ctx context.Context, event WizardEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(WizardEventStepChanged, func(ctx context.Context, event WizardEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), WizardEventStepChanged, WizardEvent{Type: WizardEventStepChanged}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewWizardEventBus()
	var seen []WizardEventType
	unsubscribe := SubscribeAll(bus, func(ctx context.Context, event WizardEvent) error {
		seen = append(seen, event.Type)
		return nil
	})

	for _, eventType := range WizardEventTypes {
		_ = bus.Publish(context.Background(), eventType, WizardEvent{Type: eventType, To: domain.StepInput})
	}
	if len(seen) != len(WizardEventTypes) {
		t.Fatalf("expected %d events, got %d", len(WizardEventTypes), len(seen))
	}

	unsubscribe()
	_ = bus.Publish(context.Background(), WizardEventStepChanged, WizardEvent{Type: WizardEventStepChanged})
	if len(seen) != len(WizardEventTypes) {
		t.Fatalf("expected no events after unsubscribe")
	}
}
