// Package notify consumes OrderCreated events and dispatches order
// confirmations. Actual mail transport is the messaging collaborator's
// concern; here the rendered notification is logged.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/elishop/go-checkout/internal/checkout"
	kafkax "github.com/elishop/go-checkout/internal/kafka"
	"github.com/elishop/go-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type Service struct {
	Redis       *redis.Client // optional; nil disables dedup
	ServiceName string
}

// HandleOrderCreated is the consumer handler for the order.created topic.
// Duplicate deliveries are dropped by event id; an unknown event type is
// ignored, not an error.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != checkout.EventOrderCreated {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[checkout.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}

	log.Printf("notify: order confirmation owner=%s order=%s total_cents=%d trace=%s",
		p.OwnerID, p.OrderID, p.TotalCents, env.TraceID)
	return nil
}
