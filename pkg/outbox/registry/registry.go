package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pokecard-storefront/pkg/config"
	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox"
	"github.com/angelmondragon/pokecard-storefront/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// TopicFor returns "<prefix>.<aggregate>s", one topic per aggregate type.
func TopicFor(prefix string, aggregate enums.OutboxAggregateType) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	name := string(aggregate) + "s"
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// NewEventRegistry builds the registry with topic names derived from the Kafka prefix.
func NewEventRegistry(cfg config.KafkaConfig) (*EventRegistry, error) {
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		return nil, fmt.Errorf("kafka topic prefix is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderPaid,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderPaidEvent{} },
		},
		{
			EventType:      enums.EventCheckoutExpired,
			AggregateType:  enums.AggregateCheckoutSession,
			PayloadFactory: func() interface{} { return &payloads.CheckoutExpiredEvent{} },
		},
	} {
		desc.Topic = TopicFor(cfg.TopicPrefix, desc.AggregateType)
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Topics lists every topic an event can be routed to, sorted.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.entries))
	topics := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
