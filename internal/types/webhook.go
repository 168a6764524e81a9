package types

import (
	"encoding/json"
	"time"
)

// Webhook event names published by the quota core
const (
	WebhookEventEnrollmentCreated  = "enrollment.created"
	WebhookEventEnrollmentExpired  = "enrollment.expired"
	WebhookEventEnrollmentDepleted = "enrollment.depleted"
	WebhookEventUsageCommitted     = "usage.committed"
)

// WebhookEvent is the envelope published on the webhook topic. Payload is
// built lazily by the dispatcher so it always reflects current state.
type WebhookEvent struct {
	ID           string          `json:"id"`
	EventName    string          `json:"event_name"`
	BusinessName string          `json:"business_name"`
	UserID       string          `json:"user_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}
