package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// WebhookEndpoint is a tenant-configured HTTP destination for event
// notifications. Health fields are mutated by every delivery attempt; the
// shared secret is generated once at creation and never rotated implicitly.
type WebhookEndpoint struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	URL            string    `json:"url" db:"url"`

	// Secret is never serialized; it is returned exactly once, at creation.
	Secret string `json:"-" db:"secret"`

	Events pq.StringArray `json:"events" db:"events"`

	IsActive            bool       `json:"is_active" db:"is_active"`
	ConsecutiveFailures int        `json:"consecutive_failures" db:"consecutive_failures"`
	LastDeliveryAt      *time.Time `json:"last_delivery_at,omitempty" db:"last_delivery_at"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty" db:"last_success_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SubscribedTo reports whether the endpoint subscribes to the given event.
func (e *WebhookEndpoint) SubscribedTo(eventType string) bool {
	for _, ev := range e.Events {
		if ev == eventType {
			return true
		}
	}
	return false
}

// CreateWebhookRequest registers a new endpoint. The generated secret is
// returned only in the creation response.
type CreateWebhookRequest struct {
	Name   string   `json:"name" binding:"required,max=255"`
	URL    string   `json:"url" binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}

// UpdateWebhookRequest mutates an existing endpoint. Nil fields are left
// untouched; setting IsActive true resets the failure streak.
type UpdateWebhookRequest struct {
	Name     *string  `json:"name,omitempty"`
	URL      *string  `json:"url,omitempty" binding:"omitempty,url"`
	Events   []string `json:"events,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

// WebhookWithSecret is the creation response, the only place the plaintext
// secret ever appears.
type WebhookWithSecret struct {
	WebhookEndpoint
	Secret string `json:"secret"`
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusSkipped   DeliveryStatus = "skipped"
)

// WebhookDelivery is the audit record for one HTTP delivery attempt. Rows are
// created pending immediately before the call and moved to exactly one
// terminal state afterwards, never backward.
type WebhookDelivery struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	WebhookID  uuid.UUID       `json:"webhook_id" db:"webhook_id"`
	EventType  string          `json:"event_type" db:"event_type"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Attempt    int             `json:"attempt" db:"attempt"`
	Status     DeliveryStatus  `json:"status" db:"status"`

	HTTPStatusCode *int    `json:"http_status_code,omitempty" db:"http_status_code"`
	ResponseBody   *string `json:"response_body,omitempty" db:"response_body"`
	ErrorMessage   *string `json:"error_message,omitempty" db:"error_message"`

	DeliveredAt  *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty" db:"scheduled_for"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WebhookPayload is the wire object that gets signed and POSTed. Signature
// verification must run over the byte-identical serialization of this struct.
type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DeliveryResult is the structured outcome of a single delivery attempt.
type DeliveryResult struct {
	Success        bool   `json:"success"`
	HTTPStatusCode int    `json:"http_status_code,omitempty"`
	ResponseBody   string `json:"response_body,omitempty"`
	Error          string `json:"error,omitempty"`
}
