package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fimiwatch/tweetvault/internal/observability/notify"
)

func TestServiceNotifyTaskFailure(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var received []notify.TaskFailurePayload
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "capture",
				Sink: notify.SinkFunc(func(_ context.Context, payload notify.TaskFailurePayload) error {
					mu.Lock()
					defer mu.Unlock()
					received = append(received, payload)
					return nil
				}),
			},
		},
	})

	svc.NotifyTaskFailure(ctx, notify.TaskFailurePayload{
		TaskID:     "task-123",
		EventLabel: "jan-incident",
	})

	if len(received) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(received))
	}
	if received[0].Severity != notify.SeverityCritical {
		t.Fatalf("expected severity to default to critical, got %s", received[0].Severity)
	}
}

func TestServiceFansOutToAllSinks(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	counts := map[string]int{}
	capture := func(name string) notify.Sink {
		return notify.SinkFunc(func(context.Context, notify.TaskFailurePayload) error {
			mu.Lock()
			defer mu.Unlock()
			counts[name]++
			return nil
		})
	}

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "slack", Sink: capture("slack")},
			{Name: "pagerduty", Sink: capture("pagerduty")},
		},
	})

	svc.NotifyTaskFailure(ctx, notify.TaskFailurePayload{TaskID: "task-123"})

	if counts["slack"] != 1 || counts["pagerduty"] != 1 {
		t.Fatalf("expected delivery to both sinks, got %v", counts)
	}
}

func TestServiceContinuesPastSinkError(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	delivered := 0
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{
				Name: "broken",
				Sink: notify.SinkFunc(func(context.Context, notify.TaskFailurePayload) error {
					return errors.New("webhook down")
				}),
			},
			{
				Name: "working",
				Sink: notify.SinkFunc(func(context.Context, notify.TaskFailurePayload) error {
					mu.Lock()
					defer mu.Unlock()
					delivered++
					return nil
				}),
			},
		},
	})

	svc.NotifyTaskFailure(ctx, notify.TaskFailurePayload{TaskID: "task-123"})

	if delivered != 1 {
		t.Fatalf("expected working sink delivery despite broken sink, got %d", delivered)
	}
}

func TestServiceEnabled(t *testing.T) {
	if NewService(Options{}).Enabled() {
		t.Fatal("expected notifier without sinks to be disabled")
	}

	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Sink: notify.SinkFunc(func(context.Context, notify.TaskFailurePayload) error { return nil })},
		},
	})
	if !svc.Enabled() {
		t.Fatal("expected notifier with a sink to be enabled")
	}

	// nil sinks are skipped
	svc = NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}})
	if svc.Enabled() {
		t.Fatal("expected nil sink registrations to be dropped")
	}
}
