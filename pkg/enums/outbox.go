package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres. The
// publisher uses the aggregate id as the Pub/Sub ordering key.
type OutboxAggregateType string

const AggregatePurchase OutboxAggregateType = "purchase"

var aggregateTypes = []OutboxAggregateType{AggregatePurchase}

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPurchaseCreated       OutboxEventType = "purchase.created"
	EventPurchaseStatusChanged OutboxEventType = "purchase.status_changed"
)

var eventTypes = []OutboxEventType{EventPurchaseCreated, EventPurchaseStatusChanged}

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}
