package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrderCycle      OutboxAggregateType = "order_cycle"
	AggregateEnterprise      OutboxAggregateType = "enterprise"
	AggregateVariantOverride OutboxAggregateType = "variant_override"
	AggregateProduct         OutboxAggregateType = "product"
	AggregateEnterpriseFee   OutboxAggregateType = "enterprise_fee"
	AggregateOrder           OutboxAggregateType = "order"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateOrderCycle,
	AggregateEnterprise,
	AggregateVariantOverride,
	AggregateProduct,
	AggregateEnterpriseFee,
	AggregateOrder,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventProductsCacheInvalidated OutboxEventType = "products_cache_invalidated"
	EventOrderCompleted           OutboxEventType = "order_completed"
)

// eventAggregates pins the aggregate an event must be emitted for. An empty
// entry accepts any aggregate: cache invalidations are raised by cycles,
// enterprises, overrides, products and fees alike.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventProductsCacheInvalidated: "",
	EventOrderCompleted:           AggregateOrder,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is bound to, or "" when any
// aggregate may emit it.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// Accepts reports whether e may be emitted for aggregate a.
func (e OutboxEventType) Accepts(a OutboxAggregateType) bool {
	want, ok := eventAggregates[e]
	if !ok || !a.IsValid() {
		return false
	}
	return want == "" || want == a
}

// OutboxDLQErrorReason records why the publisher gave up on a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
