package enums

import "fmt"

// OutboxEventType identifies a domain event emitted through the outbox.
type OutboxEventType string

const (
	EventShipmentRequested       OutboxEventType = "shipment.requested"
	EventShipmentShipped         OutboxEventType = "shipment.shipped"
	EventShipmentCancelled       OutboxEventType = "shipment.cancelled"
	EventShipmentStatusChanged   OutboxEventType = "shipment.status_changed"
	EventNotificationEmailQueued OutboxEventType = "notification.email_queued"
)

var validOutboxEventTypes = []OutboxEventType{
	EventShipmentRequested,
	EventShipmentShipped,
	EventShipmentCancelled,
	EventShipmentStatusChanged,
	EventNotificationEmailQueued,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateShipment     OutboxAggregateType = "shipment"
	AggregateNotification OutboxAggregateType = "notification"
)

// String implements fmt.Stringer.
func (o OutboxAggregateType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (o OutboxAggregateType) IsValid() bool {
	return o == AggregateShipment || o == AggregateNotification
}
