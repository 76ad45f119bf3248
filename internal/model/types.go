package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a single data payload received on a subscription.
type Event struct {
	ID             uuid.UUID       // Primary key, assigned on receipt
	Subscription   string          // Configured subscription name (e.g., "zone")
	SubscriptionID string          // Transport subscription id ("0", "1", ...)
	Payload        json.RawMessage // Data frame payload as received
	ReceivedAt     int64           // Local receive time (µs since epoch)
}

// NewEvent stamps a payload with a fresh ID and the receive time. A missing
// payload is stored as JSON null.
func NewEvent(name, subID string, payload json.RawMessage, receivedAt time.Time) Event {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Event{
		ID:             uuid.New(),
		Subscription:   name,
		SubscriptionID: subID,
		Payload:        payload,
		ReceivedAt:     receivedAt.UnixMicro(),
	}
}

// ReceivedTime returns ReceivedAt as a time.Time.
func (e Event) ReceivedTime() time.Time {
	return time.UnixMicro(e.ReceivedAt)
}
