package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	OrderCreated     = "OrderCreated"
	PaymentInitiated = "PaymentInitiated"
	PaymentSucceeded = "PaymentSucceeded"
	PaymentFailed    = "PaymentFailed"
)

// Envelope wraps every order event. CorrelationID is always the external
// order_id so one order's events share a partition and keep their order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Sink is the capability the order and payment services publish through.
// The kafka Publisher implements it; tests use Nop or a recorder.
type Sink interface {
	Emit(ctx context.Context, orderID, eventType string, payload any) error
}

func NewEnvelope(orderID, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "mmshop-api",
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

// Nop drops every event. Used in tests and when no broker is configured.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, any) error { return nil }
