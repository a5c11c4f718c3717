package store

import (
	"encoding/json"
	"time"
)

const (
	EventPurchaseCreated   = "PurchaseCreated"
	EventPurchaseUpdated   = "PurchaseUpdated"
	EventPurchaseCancelled = "PurchaseCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // purchase_id
	Payload       json.RawMessage `json:"payload"`
}

type LineQty struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PurchaseCreatedPayload struct {
	PurchaseID string    `json:"purchase_id"`
	UserID     string    `json:"user_id"`
	Status     Status    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	Items      []LineQty `json:"items"`
}

type PurchaseUpdatedPayload struct {
	PurchaseID    string    `json:"purchase_id"`
	ItemsReplaced bool      `json:"items_replaced"`
	Items         []LineQty `json:"items,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Status        Status    `json:"status,omitempty"`
}

type PurchaseCancelledPayload struct {
	PurchaseID string `json:"purchase_id"`
}
