package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher writes order events to a single kafka topic, keyed by order_id.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Publisher) Emit(ctx context.Context, orderID, eventType string, payload any) error {
	env, err := NewEnvelope(orderID, eventType, payload)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID),
		Value: value,
		Time:  env.OccurredAt,
	}); err != nil {
		// Events are telemetry, not source of truth. Log and move on so a
		// broker outage never blocks an order or a callback.
		log.Printf("[events] publish %s order_id=%s failed: %v", eventType, orderID, err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error { return p.w.Close() }
