// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads into typed events.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/outbox/payloads"
)

// EventDescriptor is the routing entry for one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry knows every event type the publisher may emit.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish and belongs in the DLQ.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err as a NonRetryableError.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewEventRegistry routes order and exchange events to the orders topic and
// payment events to the payments topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var missing []error
	if cfg.OrdersTopic == "" {
		missing = append(missing, errors.New("orders topic is required"))
	}
	if cfg.PaymentsTopic == "" {
		missing = append(missing, errors.New("payments topic is required"))
	}
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	orders := func(event enums.OutboxEventType, agg enums.OutboxAggregateType, decode func(json.RawMessage) (any, error)) EventDescriptor {
		return EventDescriptor{EventType: event, AggregateType: agg, Topic: cfg.OrdersTopic, decode: decode}
	}
	// order_paid belongs to the order aggregate but is a payment outcome.
	payments := func(event enums.OutboxEventType, agg enums.OutboxAggregateType) EventDescriptor {
		return EventDescriptor{EventType: event, AggregateType: agg, Topic: cfg.PaymentsTopic, decode: decodeAs[payloads.PaymentEvent]}
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		orders(enums.EventOrderCreated, enums.AggregateOrder, decodeAs[payloads.OrderCreatedEvent]),
		orders(enums.EventOrderDelivering, enums.AggregateOrder, decodeAs[payloads.OrderStatusChangedEvent]),
		orders(enums.EventOrderCompleted, enums.AggregateOrder, decodeAs[payloads.OrderStatusChangedEvent]),
		orders(enums.EventOrderCancelled, enums.AggregateOrder, decodeAs[payloads.OrderStatusChangedEvent]),
		orders(enums.EventExchangeRequested, enums.AggregateNegotiation, decodeAs[payloads.ExchangeEvent]),
		orders(enums.EventExchangeAccepted, enums.AggregateNegotiation, decodeAs[payloads.ExchangeEvent]),
		orders(enums.EventExchangeRefused, enums.AggregateNegotiation, decodeAs[payloads.ExchangeEvent]),
		payments(enums.EventOrderPaid, enums.AggregateOrder),
		payments(enums.EventPaymentFailed, enums.AggregateTransaction),
		payments(enums.EventPaymentMismatch, enums.AggregateTransaction),
	} {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its routing entry and decodes the payload.
// Every failure is non-retryable: the row content will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, errors.New("unsupported event type")
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, err
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
