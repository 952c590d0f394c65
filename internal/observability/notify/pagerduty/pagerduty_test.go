package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/fimiwatch/tweetvault/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.TaskFailurePayload{
		TaskID:     "task-123",
		State:      "failure",
		Error:      "sink unreachable",
		ErrorClass: "upload",
	}
	event := client.buildEvent(payload)

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "tweetvault" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "tweetvault" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"task_id", "event_label", "state", "error", "error_class"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}
}

func TestBuildEventDedupKey(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.TaskFailurePayload{
		TaskID:     "task-123",
		EventLabel: "jan-incident",
	})
	if event["dedup_key"] != "jan-incident:task-123" {
		t.Fatalf("unexpected dedup key: %v", event["dedup_key"])
	}

	// missing event label drops the leading separator
	event = client.buildEvent(notify.TaskFailurePayload{TaskID: "task-123"})
	if event["dedup_key"] != "task-123" {
		t.Fatalf("unexpected dedup key without label: %v", event["dedup_key"])
	}
}

func TestBuildEventSummary(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.TaskFailurePayload{
		TaskID:     "task-123",
		EventLabel: "jan-incident",
	})
	payloadSection := event["payload"].(map[string]any)
	summary, _ := payloadSection["summary"].(string)
	if !strings.Contains(summary, "task-123") || !strings.Contains(summary, "jan-incident") {
		t.Fatalf("summary missing identifiers: %s", summary)
	}
}

func TestBuildEventMetadataMergesWithoutOverride(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.TaskFailurePayload{
		TaskID: "task-123",
		State:  "failure",
		Metadata: map[string]string{
			"error_count": "3",
			"state":       "spoofed",
		},
	})
	payloadSection := event["payload"].(map[string]any)
	custom := payloadSection["custom_details"].(map[string]any)

	if custom["error_count"] != "3" {
		t.Fatalf("expected metadata key copied, got %v", custom["error_count"])
	}
	if custom["state"] != "failure" {
		t.Fatalf("expected payload field to win over metadata, got %v", custom["state"])
	}
}

func TestBuildEventRoutingAction(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.TaskFailurePayload{TaskID: "task-123"})
	if event["routing_key"] != "key" {
		t.Fatalf("unexpected routing key: %v", event["routing_key"])
	}
	if event["event_action"] != "trigger" {
		t.Fatalf("unexpected event action: %v", event["event_action"])
	}
}
