package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	payload := json.RawMessage(`{"data":{"zone":"Veilstorm"}}`)

	ev := NewEvent("zone", "4", payload, now)

	if ev.ID == uuid.Nil {
		t.Error("ID should be assigned")
	}
	if ev.Subscription != "zone" {
		t.Errorf("Subscription = %q, want zone", ev.Subscription)
	}
	if ev.SubscriptionID != "4" {
		t.Errorf("SubscriptionID = %q, want 4", ev.SubscriptionID)
	}
	if string(ev.Payload) != string(payload) {
		t.Errorf("Payload = %s, want %s", ev.Payload, payload)
	}
	if ev.ReceivedAt != now.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", ev.ReceivedAt, now.UnixMicro())
	}
	if !ev.ReceivedTime().Equal(now) {
		t.Errorf("ReceivedTime() = %v, want %v", ev.ReceivedTime(), now)
	}
}

func TestNewEvent_MissingPayloadIsNull(t *testing.T) {
	for _, payload := range []json.RawMessage{nil, {}} {
		ev := NewEvent("zone", "0", payload, time.Now())
		if string(ev.Payload) != "null" {
			t.Errorf("Payload = %q, want null", ev.Payload)
		}
	}
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	seen := make(map[uuid.UUID]bool)
	for i := 0; i < 100; i++ {
		ev := NewEvent("zone", "0", nil, time.Now())
		if seen[ev.ID] {
			t.Fatalf("duplicate event ID %s", ev.ID)
		}
		seen[ev.ID] = true
	}
}
