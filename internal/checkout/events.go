package checkout

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicOrderCreated = "order.created"

	EventOrderCreated = "OrderCreated"
)

// Envelope is the wire format for domain events, versioned per event type.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	OwnerID    string `json:"owner_id"`
	TotalCents int64  `json:"total_cents"`
}

// NewOrderCreated wraps a committed order into a v1 envelope.
func NewOrderCreated(o *Order, producer, traceID string) Envelope {
	payload, err := json.Marshal(OrderCreatedPayload{
		OrderID:    o.ID,
		OwnerID:    o.OwnerID,
		TotalCents: o.TotalCents,
	})
	if err != nil {
		panic(err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload:       payload,
	}
}

// PartitionKey keeps every event of one order on the same partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
