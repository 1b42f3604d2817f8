package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEscrowDeposit OutboxAggregateType = "escrow_deposit"
	AggregateInquiry       OutboxAggregateType = "inquiry"
	AggregateSubscription  OutboxAggregateType = "subscription"
	AggregateWebhookEvent  OutboxAggregateType = "webhook_event"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEscrowDeposit,
	AggregateInquiry,
	AggregateSubscription,
	AggregateWebhookEvent,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
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

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEscrowHeld           OutboxEventType = "escrow_held"
	EventEscrowReleased       OutboxEventType = "escrow_released"
	EventEscrowRefunded       OutboxEventType = "escrow_refunded"
	EventEscrowExpired        OutboxEventType = "escrow_expired"
	EventEscrowReleaseFailed  OutboxEventType = "escrow_release_failed"
	EventInquiryResolved      OutboxEventType = "inquiry_resolved"
	EventSubscriptionSynced   OutboxEventType = "subscription_synced"
	EventSubscriptionCanceled OutboxEventType = "subscription_canceled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEscrowHeld,
	EventEscrowReleased,
	EventEscrowRefunded,
	EventEscrowExpired,
	EventEscrowReleaseFailed,
	EventInquiryResolved,
	EventSubscriptionSynced,
	EventSubscriptionCanceled,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies why an event landed in the dead-letter table.
type OutboxDLQErrorReason string

const (
	DLQReasonDispatchFailed OutboxDLQErrorReason = "dispatch_failed"
	DLQReasonHandlerFailed  OutboxDLQErrorReason = "handler_failed"
	DLQReasonDecodeFailed   OutboxDLQErrorReason = "decode_failed"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case DLQReasonDispatchFailed, DLQReasonHandlerFailed, DLQReasonDecodeFailed:
		return true
	}
	return false
}
