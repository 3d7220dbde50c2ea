package kafka

import (
	"strconv"

	"github.com/elishop/go-checkout/internal/checkout"
	kafkago "github.com/segmentio/kafka-go"
)

// EventEmitter adapts the async producer to the checkout.Emitter contract.
type EventEmitter struct {
	p *Producer
}

func NewEventEmitter(p *Producer) *EventEmitter { return &EventEmitter{p: p} }

func (e *EventEmitter) Emit(ev checkout.Envelope) {
	e.p.Publish(
		checkout.PartitionKey(ev.CorrelationID),
		MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}
