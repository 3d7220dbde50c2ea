package notify

import (
	"context"
	"testing"
	"time"

	"github.com/elishop/go-checkout/internal/checkout"
	kafkax "github.com/elishop/go-checkout/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderCreatedMessage() kafkago.Message {
	ev := checkout.NewOrderCreated(&checkout.Order{
		ID:         "o1",
		OwnerID:    "alice",
		CreatedAt:  time.Now().UTC(),
		TotalCents: 3000,
	}, "test-api", "trace-1")
	return kafkago.Message{
		Key:   checkout.PartitionKey("o1"),
		Value: kafkax.MustMarshal(ev),
	}
}

func TestHandleOrderCreated(t *testing.T) {
	svc := &Service{ServiceName: "test-notifier"}
	require.NoError(t, svc.HandleOrderCreated(context.Background(), orderCreatedMessage()))
}

func TestIgnoresForeignEventTypes(t *testing.T) {
	svc := &Service{ServiceName: "test-notifier"}
	ev := checkout.Envelope{
		EventID:      "e1",
		EventType:    "SomethingElse",
		EventVersion: 1,
		Payload:      []byte(`{}`),
	}
	require.NoError(t, svc.HandleOrderCreated(context.Background(), kafkago.Message{
		Value: kafkax.MustMarshal(ev),
	}))
}

func TestRejectsGarbage(t *testing.T) {
	svc := &Service{ServiceName: "test-notifier"}
	err := svc.HandleOrderCreated(context.Background(), kafkago.Message{Value: []byte("{broken")})
	assert.Error(t, err)
}
