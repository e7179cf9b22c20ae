package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCheckoutSession,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain event carried by an outbox row.
type OutboxEventType string

const (
	EventOrderPaid       OutboxEventType = "order.paid"
	EventCheckoutExpired OutboxEventType = "checkout.expired"
)

var validEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventCheckoutExpired,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
